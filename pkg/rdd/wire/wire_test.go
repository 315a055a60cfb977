package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rdd.go/pkg/rdd/status"
)

func TestFrameBytes(t *testing.T) {
	testCases := []struct {
		name   string
		frame  Frame
		expect []byte
	}{
		{"open request", Frame{Kind: KindRequest, Action: ActionOpen, Token: 1, Handle: 2, Payload: []byte{1, 1, 0, 0}}, []byte{0x00, 1, 2, 1, 1, 0, 0}},
		{"close response", Frame{Kind: KindResponse, Action: ActionClose, Token: 7, Handle: 3}, []byte{0x83, 7, 3}},
		{"read report", Frame{Kind: KindReport, Action: ActionRead, Handle: 4, Payload: []byte{9}}, []byte{0xc1, 0, 4, 9}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := tc.frame.Bytes()
			require.Equal(t, tc.expect, b)
			f, err := Decode(b)
			require.NoError(t, err)
			require.Equal(t, tc.frame.Kind, f.Kind)
			require.Equal(t, tc.frame.Action, f.Action)
			require.Equal(t, tc.frame.Token, f.Token)
			require.Equal(t, tc.frame.Handle, f.Handle)
			if len(tc.frame.Payload) > 0 {
				require.Equal(t, tc.frame.Payload, f.Payload)
			} else {
				require.Empty(t, f.Payload)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, b := range [][]byte{nil, {0x80, 1}, {0x40, 1, 1}, {0x85, 1, 1}} {
		_, err := Decode(b)
		require.Error(t, err)
		require.IsType(t, &DecodeError{}, err)
	}
}

func TestRequestPayloads(t *testing.T) {
	open := OpenRequest{Address: 2, Flags: Force, Param: 0x1234}
	require.Equal(t, []byte{2, 1, 0x34, 0x12}, open.Encode())
	decodedOpen, err := DecodeOpenRequest(open.Encode())
	require.NoError(t, err)
	require.Equal(t, open, *decodedOpen)

	read := ReadRequest{Flags: MilliRun, Register: RegIntervals, Count: 8}
	require.Equal(t, []byte{2, 0xfc, 0xff, 8, 0}, read.Encode())
	decodedRead, err := DecodeReadRequest(read.Encode())
	require.NoError(t, err)
	require.Equal(t, read, *decodedRead)

	write := WriteRequest{Register: 0, Data: []byte("hi")}
	decodedWrite, err := DecodeWriteRequest(write.Encode())
	require.NoError(t, err)
	require.Equal(t, write, *decodedWrite)

	closeReq := CloseRequest{}
	decodedClose, err := DecodeCloseRequest(closeReq.Encode())
	require.NoError(t, err)
	require.Equal(t, closeReq, *decodedClose)

	_, err = DecodeReadRequest([]byte{1})
	require.Error(t, err)
	_, err = DecodeOpenRequest(nil)
	require.Error(t, err)
	_, err = DecodeWriteRequest([]byte{0})
	require.Error(t, err)
}

func TestReply(t *testing.T) {
	ok := Reply{Status: 5, Register: 0, Data: []byte("hello")}
	decoded, err := DecodeReply(ok.Encode())
	require.NoError(t, err)
	require.Equal(t, ok, *decoded)
	require.Equal(t, status.ESUCCESS, decoded.Code())

	failed := NewErrorReply(status.EBUSY)
	require.Equal(t, int16(-16), failed.Status)
	decoded, err = DecodeReply(failed.Encode())
	require.NoError(t, err)
	require.Equal(t, status.EBUSY, decoded.Code())

	_, err = DecodeReply([]byte{1, 2})
	require.Error(t, err)
}

func TestIntervals(t *testing.T) {
	b := EncodeIntervals(0, 1000)
	require.Equal(t, []byte{0, 0, 0, 0, 0xe8, 0x03, 0, 0}, b)
	micros, millis, err := DecodeIntervals(b)
	require.NoError(t, err)
	require.Zero(t, micros)
	require.Equal(t, uint32(1000), millis)

	_, _, err = DecodeIntervals(b[:7])
	require.Error(t, err)
}
