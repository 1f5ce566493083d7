// Command ctap2-hybrid pairs with a phone authenticator over the caBLE v2
// hybrid transport and runs a GetInfo/GetAssertion round against it.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jo-bitsch/libwebauthn/pkg/ble"
	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/qrcode"
	"github.com/jo-bitsch/libwebauthn/pkg/transport"
	"github.com/jo-bitsch/libwebauthn/pkg/tunnel"
	"github.com/jo-bitsch/libwebauthn/pkg/webauthn"
)

func main() {
	var (
		rpID     = flag.String("rp", "example.org", "relying party ID for the demo assertion")
		storeDir = flag.String("store", "known-devices", "directory for known-device records")
		timeout  = flag.Duration("timeout", 5*time.Minute, "operation timeout")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logrus.WithField("signal", sig).Info("shutting down")
		cancel()
	}()

	if err := run(ctx, *rpID, *storeDir); err != nil {
		if ctx.Err() != nil {
			logrus.WithError(ctx.Err()).Error("operation did not complete")
		} else {
			logrus.WithError(err).Error("hybrid transport failed")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, rpID, storeDir string) error {
	state, err := qrcode.NewState()
	if err != nil {
		return err
	}
	url := state.URL(tunnel.HintGetAssertion)
	rendered, err := qrcode.Render(url)
	if err != nil {
		return err
	}
	fmt.Println("Scan this QR code with your phone to authenticate:")
	fmt.Println(rendered)
	fmt.Println(url)

	scanner, err := ble.NewScanner()
	if err != nil {
		return err
	}
	store, err := tunnel.NewFileDeviceInfoStore(storeDir)
	if err != nil {
		return err
	}
	identityKey, err := state.IdentityKey()
	if err != nil {
		return err
	}

	ch, err := tunnel.ConnectWithQR(ctx, tunnel.QROptions{
		IdentityKey: identityKey,
		QRSecret:    state.QRSecret,
		Adverts:     scanner,
		Store:       store,
	})
	if err != nil {
		return err
	}
	defer ch.Close()

	go handleUpdates(ch.UxBus().Subscribe())

	client := webauthn.NewClient(ch)
	info, err := client.GetInfo(ctx)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"versions": info.Versions,
		"aaguid":   fmt.Sprintf("%x", info.AAGUID),
	}).Info("connected to authenticator")

	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return err
	}
	clientDataHash := sha256.Sum256(challenge)
	assertions, err := client.GetAssertion(ctx, &ctap2.GetAssertionRequest{
		RpID:           rpID,
		ClientDataHash: clientDataHash[:],
	})
	if err != nil {
		return err
	}
	for _, assertion := range assertions {
		logrus.WithField("signature", fmt.Sprintf("%x", assertion.Signature)).
			Info("assertion received")
	}
	return nil
}

// handleUpdates drives the terminal UX for UV events.
func handleUpdates(updates <-chan transport.UvUpdate) {
	stdin := bufio.NewReader(os.Stdin)
	for update := range updates {
		switch u := update.(type) {
		case transport.PresenceRequired:
			fmt.Println("Please confirm the operation on your device.")
		case transport.UvRetry:
			if u.AttemptsLeft != nil {
				fmt.Printf("User verification failed, %d attempts left.\n", *u.AttemptsLeft)
			} else {
				fmt.Println("User verification failed.")
			}
		case *transport.PinRequired:
			if u.AttemptsLeft != nil {
				fmt.Printf("PIN required (%s), %d attempts left: ", u.Reason, *u.AttemptsLeft)
			} else {
				fmt.Printf("PIN required (%s): ", u.Reason)
			}
			line, err := stdin.ReadString('\n')
			if err != nil || len(line) <= 1 {
				u.Cancel()
				continue
			}
			u.SendPin(line[:len(line)-1])
		}
	}
}
