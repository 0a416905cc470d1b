// go-ultralight
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-ultralight.
//
// go-ultralight is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-ultralight is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-ultralight; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package pn532

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newInitMock returns a mock that answers everything Init sends.
func newInitMock() *MockTransport {
	mock := NewMockTransport()
	mock.SetResponse(cmdGetFirmwareVersion, []byte{0x03, 0x32, 0x01, 0x06, 0x07})
	mock.SetResponse(cmdReadRegister, []byte{0x07, 0x00, 0x00})
	return mock
}

func newInitializedDevice(t *testing.T) (*Device, *MockTransport) {
	t.Helper()
	mock := newInitMock()
	device, err := New(mock)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))
	mock.Reset()
	return device, mock
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transport Transport
		name      string
		opts      []Option
		wantErr   bool
	}{
		{name: "Valid_MockTransport", transport: NewMockTransport()},
		{name: "Nil_Transport", transport: nil, wantErr: true},
		{
			name:      "Valid_Timeout",
			transport: NewMockTransport(),
			opts:      []Option{WithTimeout(250 * time.Millisecond)},
		},
		{
			name:      "Zero_Timeout",
			transport: NewMockTransport(),
			opts:      []Option{WithTimeout(0)},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, err := New(tt.transport, tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidParameter)
				assert.Nil(t, device)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.transport, device.Transport())
		})
	}
}

func TestDevice_Init(t *testing.T) {
	t.Parallel()

	mock := newInitMock()
	device, err := New(mock, WithTimeout(200*time.Millisecond), WithPassiveActivationRetries(0x05))
	require.NoError(t, err)

	require.NoError(t, device.Init(context.Background()))

	assert.Equal(t, 200*time.Millisecond, mock.Timeout())
	assert.Equal(t, [][]byte{{0x01, 0x00, 0x00}}, mock.CallsFor(cmdSamConfiguration))
	assert.Equal(t, [][]byte{{rfItemMaxRetries, 0x00, 0x00, 0x05}}, mock.CallsFor(cmdRFConfiguration))
	assert.Equal(t, [][]byte{{0x63, 0x02, 0x80, 0x63, 0x03, 0x80}}, mock.CallsFor(cmdWriteRegister))

	fw := device.FirmwareVersion()
	require.NotNil(t, fw)
	assert.Equal(t, "1.6", fw.Version)
	assert.Equal(t, byte(0x32), fw.IC)
	assert.True(t, fw.SupportIso14443a)
	assert.True(t, fw.SupportIso14443b)
	assert.True(t, fw.SupportIso18092)
	assert.Equal(t, "PN532 v1.6", fw.String())
}

func TestDevice_InitErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup   func(*MockTransport)
		wantErr error
		name    string
	}{
		{
			name: "SAM_Error_Frame",
			setup: func(m *MockTransport) {
				m.SetResponse(cmdSamConfiguration, []byte{tfiError, StatusInvalidCmd})
			},
		},
		{
			name: "Firmware_Short",
			setup: func(m *MockTransport) {
				m.SetResponse(cmdGetFirmwareVersion, []byte{0x03, 0x32})
			},
			wantErr: ErrInvalidResponse,
		},
		{
			name: "Firmware_Timeout",
			setup: func(m *MockTransport) {
				m.SetError(cmdGetFirmwareVersion, ErrTransportTimeout)
			},
			wantErr: ErrTransportTimeout,
		},
		{
			name: "Register_Read_Wrong_Length",
			setup: func(m *MockTransport) {
				m.SetResponse(cmdReadRegister, []byte{0x07, 0x00})
			},
			wantErr: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := newInitMock()
			tt.setup(mock)
			device, err := New(mock)
			require.NoError(t, err)

			err = device.Init(context.Background())
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDevice_InitToleratesRetriesRejection(t *testing.T) {
	t.Parallel()

	mock := newInitMock()
	mock.SetResponse(cmdRFConfiguration, []byte{tfiError, StatusInvalidCmd})
	device, err := New(mock)
	require.NoError(t, err)

	require.NoError(t, device.Init(context.Background()))
}

func TestDevice_SetRFField(t *testing.T) {
	t.Parallel()

	device, mock := newInitializedDevice(t)

	require.NoError(t, device.SetRFField(context.Background(), false))
	require.NoError(t, device.SetRFField(context.Background(), true))
	assert.Equal(t, [][]byte{{rfItemField, 0x00}, {rfItemField, 0x01}}, mock.CallsFor(cmdRFConfiguration))
}

func TestDevice_Close(t *testing.T) {
	t.Parallel()

	device, mock := newInitializedDevice(t)
	mock.SetResponse(cmdInListPassiveTarget, ultralightTargetResponse)
	_, err := device.SelectPassiveTarget(context.Background())
	require.NoError(t, err)

	require.NoError(t, device.Close())
	assert.False(t, mock.IsConnected())
	assert.Equal(t, 1, mock.GetCallCount(cmdInRelease))
	assert.Equal(t, [][]byte{{rfItemField, 0x00}}, mock.CallsFor(cmdRFConfiguration))

	// second close is a no-op
	require.NoError(t, device.Close())
}

func TestDevice_CloseIgnoresReleaseErrors(t *testing.T) {
	t.Parallel()

	device, mock := newInitializedDevice(t)
	mock.SetResponse(cmdInListPassiveTarget, ultralightTargetResponse)
	_, err := device.SelectPassiveTarget(context.Background())
	require.NoError(t, err)
	mock.SetError(cmdInRelease, ErrTransportTimeout)
	mock.SetError(cmdRFConfiguration, ErrTransportTimeout)

	require.NoError(t, device.Close())
	assert.False(t, mock.IsConnected())
}

func TestDevice_String(t *testing.T) {
	t.Parallel()

	device, err := New(NewMockTransport())
	require.NoError(t, err)
	assert.Equal(t, "pn532 (mock)", device.String())
}
