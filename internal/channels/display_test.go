package channels

import (
	"encoding/binary"
	"testing"

	"github.com/zbum/purespice-go/internal/channel"
	"github.com/zbum/purespice-go/internal/spiceapi"
)

func TestDrawFillSolidBrushInvokesCallback(t *testing.T) {
	var surfaceID, color uint32
	var x, y, w, hgt int32
	cb := spiceapi.DisplayCallbacks{
		DrawFill: func(sid uint32, gotX, gotY, gotW, gotH int32, c uint32) {
			surfaceID, x, y, w, hgt, color = sid, gotX, gotY, gotW, gotH, c
		},
	}
	h := NewDisplayHandler(cb)
	ch, peer := newPipeChannel(channel.KindDisplay, h)
	defer ch.Disconnect()

	body := make([]byte, 25)
	binary.LittleEndian.PutUint32(body[0:4], 1)  // surface id
	binary.LittleEndian.PutUint32(body[4:8], 10) // x
	binary.LittleEndian.PutUint32(body[8:12], 20) // y
	binary.LittleEndian.PutUint32(body[12:16], 100) // w
	binary.LittleEndian.PutUint32(body[16:20], 50)  // h
	body[20] = brushTypeSolid
	binary.LittleEndian.PutUint32(body[21:25], 0xFF0000)

	writeFrame(t, peer, MsgDisplayDrawFill, body)
	pumpOne(t, ch)

	if surfaceID != 1 || x != 10 || y != 20 || w != 100 || hgt != 50 || color != 0xFF0000 {
		t.Errorf("unexpected fill params: sid=%d x=%d y=%d w=%d h=%d color=%#x", surfaceID, x, y, w, hgt, color)
	}
}

func TestDrawFillPatternBrushIsNoOp(t *testing.T) {
	called := false
	cb := spiceapi.DisplayCallbacks{DrawFill: func(uint32, int32, int32, int32, int32, uint32) { called = true }}
	h := NewDisplayHandler(cb)
	ch, peer := newPipeChannel(channel.KindDisplay, h)
	defer ch.Disconnect()

	body := make([]byte, 21)
	body[20] = 2 // pattern brush, not solid
	writeFrame(t, peer, MsgDisplayDrawFill, body)
	pumpOne(t, ch)

	if called {
		t.Error("expected pattern brush DRAW_FILL to be a no-op")
	}
}

func TestDrawCopyUncompressedBitmap(t *testing.T) {
	var gotPixels []byte
	var gotW, gotH, gotStride uint32
	cb := spiceapi.DisplayCallbacks{
		DrawBitmap: func(sid uint32, rgba []byte, topDown bool, x, y int32, width, height, stride uint32) {
			gotPixels = append([]byte(nil), rgba...)
			gotW, gotH, gotStride = width, height, stride
		},
	}
	h := NewDisplayHandler(cb)
	ch, peer := newPipeChannel(channel.KindDisplay, h)
	defer ch.Disconnect()

	width, height, stride := uint32(2), uint32(1), uint32(8)
	body := make([]byte, 29+int(stride*height))
	binary.LittleEndian.PutUint32(body[0:4], 1) // surface id
	body[12] = imageTypeBitmap
	body[13] = bitmapFormat32bit
	binary.LittleEndian.PutUint32(body[14:18], width)
	binary.LittleEndian.PutUint32(body[18:22], height)
	binary.LittleEndian.PutUint32(body[22:26], stride)
	body[26] = 1 // top-down
	for i := 0; i < int(stride); i++ {
		body[29+i] = byte(i + 1)
	}

	writeFrame(t, peer, MsgDisplayDrawCopy, body)
	pumpOne(t, ch)

	if gotW != width || gotH != height || gotStride != stride {
		t.Errorf("w=%d h=%d stride=%d", gotW, gotH, gotStride)
	}
	if len(gotPixels) != int(stride) || gotPixels[0] != 1 {
		t.Errorf("pixels = %v", gotPixels)
	}
}

func TestDrawCopyCompressedImageRejected(t *testing.T) {
	h := NewDisplayHandler(spiceapi.DisplayCallbacks{})
	ch, peer := newPipeChannel(channel.KindDisplay, h)
	defer ch.Disconnect()

	body := make([]byte, 16)
	body[12] = 5 // not imageTypeBitmap
	writeFrame(t, peer, MsgDisplayDrawCopy, body)

	f := <-ch.Frames()
	if err := ch.HandleFrame(f); err == nil {
		t.Fatal("expected error for compressed image type")
	}
}
