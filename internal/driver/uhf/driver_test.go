package uhf

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"rfid-service/internal/protocol"
	"rfid-service/internal/transport"
	"rfid-service/internal/utils"
)

type readResult struct {
	data []byte
	err  error
}

// fakeTransport scripts read outcomes in order; once the script runs out
// every read is empty.
type fakeTransport struct {
	writes       [][]byte
	reads        []readResult
	readIdx      int
	reconnects   int
	reconnectErr error
	isOpen       bool
}

func (f *fakeTransport) Open(ctx context.Context) error { f.isOpen = true; return nil }
func (f *fakeTransport) Close() error                   { f.isOpen = false; return nil }
func (f *fakeTransport) IsOpen() bool                   { return f.isOpen }

func (f *fakeTransport) Write(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	f.writes = append(f.writes, buf)
	return nil
}

func (f *fakeTransport) Read(maxBytes int) ([]byte, error) {
	if f.readIdx >= len(f.reads) {
		return nil, nil
	}
	result := f.reads[f.readIdx]
	f.readIdx++
	return result.data, result.err
}

func (f *fakeTransport) Reconnect(ctx context.Context) error {
	f.reconnects++
	return f.reconnectErr
}

func testDriver(t *fakeTransport) *Driver {
	cfg := &Config{
		MaxRetries:   3,
		SettleDelay:  time.Millisecond,
		RetryBackoff: time.Millisecond,
	}
	logger := utils.NewReaderLogger(zap.NewNop(), "test-reader", "fake")
	return NewDriver(t, cfg, logger)
}

func fault() error {
	return &transport.Fault{Op: "read", Err: errors.New("io failure")}
}

func TestSendRetryBoundWithEmptyReads(t *testing.T) {
	ft := &fakeTransport{}
	d := testDriver(ft)

	frame, _ := protocol.BuildFrame(protocol.TypeCommand, protocol.CmdSingleInventory, nil)
	response, err := d.Send(context.Background(), frame, 3)
	if err != nil {
		t.Fatalf("no-response outcome must not be an error, got %v", err)
	}
	if response != nil {
		t.Fatalf("expected nil response, got % X", response)
	}
	if len(ft.writes) != 3 {
		t.Fatalf("expected exactly 3 write attempts, got %d", len(ft.writes))
	}
	if ft.reconnects != 0 {
		t.Fatalf("unexpected reconnects: %d", ft.reconnects)
	}
}

func TestSendRecoversViaReconnect(t *testing.T) {
	want := []byte{0xBB, 0x02, 0x22, 0x01}
	ft := &fakeTransport{
		reads: []readResult{
			{},             // 1st attempt: empty
			{err: fault()}, // 2nd attempt: transport fault
			{data: want},   // 3rd attempt: response
		},
	}
	d := testDriver(ft)

	frame, _ := protocol.BuildFrame(protocol.TypeCommand, protocol.CmdSingleInventory, nil)
	response, err := d.Send(context.Background(), frame, 3)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !bytes.Equal(response, want) {
		t.Fatalf("response mismatch: got % X", response)
	}
	if ft.reconnects != 1 {
		t.Fatalf("expected exactly one reconnection, got %d", ft.reconnects)
	}
}

func TestSendFaultOnFinalAttemptPropagates(t *testing.T) {
	ft := &fakeTransport{
		reads: []readResult{{}, {}, {err: fault()}},
	}
	d := testDriver(ft)

	frame, _ := protocol.BuildFrame(protocol.TypeCommand, protocol.CmdSingleInventory, nil)
	_, err := d.Send(context.Background(), frame, 3)
	if !transport.IsFault(err) {
		t.Fatalf("expected transport fault, got %v", err)
	}
	if ft.reconnects != 0 {
		t.Fatalf("final-attempt fault must not reconnect, got %d", ft.reconnects)
	}
}

func TestSendReconnectFailureIsFatal(t *testing.T) {
	ft := &fakeTransport{
		reads:        []readResult{{err: fault()}},
		reconnectErr: errors.New("port gone"),
	}
	d := testDriver(ft)

	frame, _ := protocol.BuildFrame(protocol.TypeCommand, protocol.CmdSingleInventory, nil)
	_, err := d.Send(context.Background(), frame, 3)
	if err == nil {
		t.Fatalf("reconnect failure swallowed")
	}
	if ft.reconnects != 1 {
		t.Fatalf("expected one reconnect attempt, got %d", ft.reconnects)
	}
}

func TestSingleInventoryOutcomes(t *testing.T) {
	tagFrame := []byte{
		0xBB, 0x02, 0x22, 0x00, 0x11, 0x00, 0xC8, 0x30, 0x00,
		0xE2, 0x00, 0x00, 0x19, 0x06, 0x0A, 0x02, 0x36, 0x15, 0x80, 0xAC, 0x01,
		0x50, 0x41, 0x00, 0x7E,
	}

	ft := &fakeTransport{reads: []readResult{{data: tagFrame}}}
	d := testDriver(ft)
	tag, err := d.SingleInventory(context.Background())
	if err != nil {
		t.Fatalf("single inventory failed: %v", err)
	}
	if tag.EPC != "E2000019060A02361580AC01" {
		t.Fatalf("EPC mismatch: %s", tag.EPC)
	}
	if tag.RSSI != -56 {
		t.Fatalf("RSSI mismatch: %d", tag.RSSI)
	}

	// Response that is not a tag frame.
	ft = &fakeTransport{reads: []readResult{{data: []byte{0xBB, 0x00, 0x22, 0x00}}}}
	d = testDriver(ft)
	if _, err := d.SingleInventory(context.Background()); !errors.Is(err, ErrNoTag) {
		t.Fatalf("expected ErrNoTag, got %v", err)
	}

	// No response at all.
	ft = &fakeTransport{}
	d = testDriver(ft)
	if _, err := d.SingleInventory(context.Background()); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
}

func TestStartMultiInventoryWritesWithoutReading(t *testing.T) {
	ft := &fakeTransport{reads: []readResult{{err: fault()}}}
	d := testDriver(ft)

	if err := d.StartMultiInventory(context.Background(), 1000); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if len(ft.writes) != 1 {
		t.Fatalf("expected one write, got %d", len(ft.writes))
	}
	// Scripted fault read untouched: no response was awaited.
	if ft.readIdx != 0 {
		t.Fatalf("start must not read a response")
	}

	decoded, err := protocol.DecodeFrame(ft.writes[0])
	if err != nil {
		t.Fatalf("start frame invalid: %v", err)
	}
	if decoded.Code != protocol.CmdMultiInventory {
		t.Fatalf("command code mismatch: 0x%02X", decoded.Code)
	}
	if !bytes.Equal(decoded.Payload, []byte{0x22, 0x03, 0xE8}) {
		t.Fatalf("payload mismatch: % X", decoded.Payload)
	}
}

func TestSelectEPCPayloadLayout(t *testing.T) {
	tagResponse := []byte{0xBB, 0x01, 0x0C, 0x00}
	ft := &fakeTransport{reads: []readResult{{data: tagResponse}}}
	d := testDriver(ft)

	if err := d.SelectEPC(context.Background(), "E2001122"); err != nil {
		t.Fatalf("select failed: %v", err)
	}

	decoded, err := protocol.DecodeFrame(ft.writes[0])
	if err != nil {
		t.Fatalf("select frame invalid: %v", err)
	}
	want := []byte{0x00, 0x00, 0x20, 0x00, 0x04, 0xE2, 0x00, 0x11, 0x22}
	if !bytes.Equal(decoded.Payload, want) {
		t.Fatalf("payload mismatch: got % X want % X", decoded.Payload, want)
	}
}

func TestSetRegionRejectsUnsupportedBeforeSending(t *testing.T) {
	ft := &fakeTransport{}
	d := testDriver(ft)

	if err := d.SetRegion(context.Background(), "Mars"); err == nil {
		t.Fatalf("unsupported region accepted")
	}
	if len(ft.writes) != 0 {
		t.Fatalf("bytes were sent for a rejected region")
	}
}

func TestReadMemoryStripsEnvelope(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	response := append([]byte{0xBB, 0x01, 0x39, 0x00, 0x09, 0x0E, 0x01}, data...)
	response = append(response, 0x00, 0x00, 0x7E)

	ft := &fakeTransport{reads: []readResult{{data: response}}}
	d := testDriver(ft)

	got, err := d.ReadMemory(context.Background(), BankUser, 0, 2, nil)
	if err != nil {
		t.Fatalf("read memory failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("data mismatch: got % X want % X", got, data)
	}

	decoded, err := protocol.DecodeFrame(ft.writes[0])
	if err != nil {
		t.Fatalf("request frame invalid: %v", err)
	}
	want := []byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
	if !bytes.Equal(decoded.Payload, want) {
		t.Fatalf("request payload mismatch: got % X want % X", decoded.Payload, want)
	}
}

func TestReadMemoryDecodesErrorFrame(t *testing.T) {
	ft := &fakeTransport{
		reads: []readResult{{data: []byte{0xBB, 0x01, 0xFF, 0x00, 0x01, 0x16, 0x17, 0x7E}}},
	}
	d := testDriver(ft)

	_, err := d.ReadMemory(context.Background(), BankTID, 0, 4, nil)
	var readerErr *ReaderError
	if !errors.As(err, &readerErr) {
		t.Fatalf("expected ReaderError, got %v", err)
	}
	if readerErr.Event.Code != 0x16 {
		t.Fatalf("error code mismatch: 0x%02X", readerErr.Event.Code)
	}
}

func TestWriteMemoryRejectsOddLengthBeforeSending(t *testing.T) {
	ft := &fakeTransport{}
	d := testDriver(ft)

	err := d.WriteMemory(context.Background(), BankUser, 0, []byte{0x01, 0x02, 0x03}, nil)
	if !errors.Is(err, protocol.ErrOddLengthData) {
		t.Fatalf("expected ErrOddLengthData, got %v", err)
	}
	if len(ft.writes) != 0 {
		t.Fatalf("bytes were sent for odd-length data")
	}
}

func TestWriteMemoryEchoCheck(t *testing.T) {
	ft := &fakeTransport{
		reads: []readResult{{data: []byte{0xBB, 0x01, 0x49, 0x00, 0x01, 0x00, 0x4B, 0x7E}}},
	}
	d := testDriver(ft)

	if err := d.WriteMemory(context.Background(), BankUser, 2, []byte{0xCA, 0xFE}, nil); err != nil {
		t.Fatalf("write memory failed: %v", err)
	}

	decoded, err := protocol.DecodeFrame(ft.writes[0])
	if err != nil {
		t.Fatalf("request frame invalid: %v", err)
	}
	want := []byte{0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00, 0x01, 0xCA, 0xFE}
	if !bytes.Equal(decoded.Payload, want) {
		t.Fatalf("request payload mismatch: got % X want % X", decoded.Payload, want)
	}
}
