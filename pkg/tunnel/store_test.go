package tunnel

import (
	"bytes"
	"context"
	"testing"
)

func testDeviceInfo() *KnownDeviceInfo {
	info := &KnownDeviceInfo{
		ContactID:    []byte{0x01, 0x02},
		Name:         "phone",
		TunnelDomain: "cable.ua5v.com",
	}
	for i := range info.LinkID {
		info.LinkID[i] = byte(i)
	}
	for i := range info.LinkSecret {
		info.LinkSecret[i] = byte(i)
	}
	info.PublicKey[0] = 0x04
	return info
}

func TestFileDeviceInfoStoreRoundTrip(t *testing.T) {
	store, err := NewFileDeviceInfoStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileDeviceInfoStore() failed: %v", err)
	}
	ctx := context.Background()
	info := testDeviceInfo()

	if err := store.PutKnownDevice(ctx, info.ID(), info); err != nil {
		t.Fatalf("PutKnownDevice() failed: %v", err)
	}
	devices, err := store.ListAll()
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	loaded, ok := devices[info.ID()]
	if !ok {
		t.Fatalf("record missing after put; have %d records", len(devices))
	}
	if loaded.Name != info.Name || !bytes.Equal(loaded.ContactID, info.ContactID) ||
		loaded.LinkSecret != info.LinkSecret {
		t.Errorf("loaded record differs: %+v", loaded)
	}

	if err := store.DeleteKnownDevice(ctx, info.ID()); err != nil {
		t.Fatalf("DeleteKnownDevice() failed: %v", err)
	}
	devices, err = store.ListAll()
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("store not empty after delete: %v", devices)
	}
	// Deleting a missing record is not an error.
	if err := store.DeleteKnownDevice(ctx, info.ID()); err != nil {
		t.Errorf("double delete failed: %v", err)
	}
}

func TestFileDeviceInfoStoreRejectsBadIDs(t *testing.T) {
	store, err := NewFileDeviceInfoStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileDeviceInfoStore() failed: %v", err)
	}
	if err := store.PutKnownDevice(context.Background(), "../escape", testDeviceInfo()); err == nil {
		t.Error("non-hex store key accepted")
	}
}

func TestNewKnownDeviceInfoValidatesLengths(t *testing.T) {
	linking := &LinkingInfo{
		ContactID:              []byte{0x01},
		LinkID:                 make([]byte, 8),
		LinkSecret:             make([]byte, 32),
		AuthenticatorPublicKey: make([]byte, 65),
		AuthenticatorName:      "phone",
	}
	if _, err := NewKnownDeviceInfo("cable.ua5v.com", linking); err != nil {
		t.Fatalf("valid linking info rejected: %v", err)
	}
	linking.LinkSecret = make([]byte, 16)
	if _, err := NewKnownDeviceInfo("cable.ua5v.com", linking); err == nil {
		t.Error("short link secret accepted")
	}
}
