package ble

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

var log = logrus.WithField("component", "ble")

// Service UUIDs from the CTAP specification.
const (
	// FIDOServiceUUID is the 16-bit FIDO service UUID 0xFFFD expanded to
	// its 128-bit form.
	FIDOServiceUUID = "0000fffd-0000-1000-8000-00805f9b34fb"
	// CableServiceUUID is the caBLE service UUID 0xFFF9 some
	// implementations advertise under.
	CableServiceUUID = "0000fff9-0000-1000-8000-00805f9b34fb"
)

// AdvertSource yields candidate advertisement payloads for trial
// decryption. The BLE scanner is the production source; tests substitute
// their own.
type AdvertSource interface {
	// Adverts starts producing candidates until ctx ends. The returned
	// stop function releases the underlying scan.
	Adverts(ctx context.Context) (<-chan []byte, func(), error)
}

// Scanner scans for caBLE v2 advertisements over the default Bluetooth
// adapter.
type Scanner struct {
	adapter *bluetooth.Adapter
}

// NewScanner enables the default adapter.
func NewScanner() (*Scanner, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enabling bluetooth adapter: %w", err)
	}
	return &Scanner{adapter: adapter}, nil
}

// Adverts scans for devices advertising a FIDO or caBLE service UUID and
// yields their candidate payloads.
func (s *Scanner) Adverts(ctx context.Context) (<-chan []byte, func(), error) {
	fidoUUID, err := bluetooth.ParseUUID(FIDOServiceUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing FIDO service UUID: %w", err)
	}
	cableUUID, err := bluetooth.ParseUUID(CableServiceUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing caBLE service UUID: %w", err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			select {
			case <-ctx.Done():
				_ = adapter.StopScan()
				return
			default:
			}
			payload := result.AdvertisementPayload
			if !payload.HasServiceUUID(fidoUUID) && !payload.HasServiceUUID(cableUUID) {
				return
			}
			log.WithFields(logrus.Fields{
				"address": result.Address.String(),
				"rssi":    result.RSSI,
			}).Debug("candidate caBLE advertisement")
			for _, candidate := range extractCandidates(payload) {
				select {
				case out <- candidate:
				case <-ctx.Done():
					_ = adapter.StopScan()
					return
				}
			}
		})
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("BLE scan ended")
		}
	}()

	stop := func() { _ = s.adapter.StopScan() }
	return out, stop, nil
}

// extractCandidates pulls possible 20-byte advert payloads out of an
// advertisement. Service data is not surfaced uniformly across platforms,
// so manufacturer data is also considered.
func extractCandidates(payload bluetooth.AdvertisementPayload) [][]byte {
	var candidates [][]byte
	for _, md := range payload.ManufacturerData() {
		if len(md) == AdvertLength {
			candidates = append(candidates, md)
		}
	}
	return candidates
}

// WaitForAdvert consumes candidates from src until one authenticates under
// the decryptor or the context ends.
func WaitForAdvert(ctx context.Context, src AdvertSource, dec *AdvertDecryptor) (*DecryptedAdvert, error) {
	candidates, stop, err := src.Adverts(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()

	for {
		select {
		case candidate, ok := <-candidates:
			if !ok {
				return nil, fmt.Errorf("advertisement source closed")
			}
			if advert, ok := dec.TrialDecrypt(candidate); ok {
				log.WithField("routing_id", fmt.Sprintf("%x", advert.RoutingID)).
					Debug("matching advertisement decrypted")
				return advert, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
