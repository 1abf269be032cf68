// Command noisexx-demo drives a complete in-process Noise_XX handshake
// between two identities, using a SoftwareVault for both
// sides and session.Manager to own each side's engine lifecycle. Static
// identity keys are loaded from (or, on first run, generated into)
// vault.StaticKeyStore and the responder's message-1 ephemeral key is
// checked against a session.ReplayGuard, exercising the same path a
// long-running deployment would use. It prints the four resulting traffic
// key handles, which are opaque vault ids and differ from one another even
// where two of them name the same key bytes.
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/vaultnoise/noisexx/config"
	"github.com/vaultnoise/noisexx/noise"
	"github.com/vaultnoise/noisexx/session"
	"github.com/vaultnoise/noisexx/vault"
)

func main() {
	configPath := flag.String("config", "", "path to an engine config YAML file (optional)")
	masterPassword := flag.String("master-password", "noisexx-demo-passphrase", "passphrase protecting the demo's at-rest static keys")
	flag.Parse()

	cfg := config.DefaultEngineConfig()
	if *configPath != "" {
		loaded, err := config.LoadEngineConfig(*configPath)
		if err != nil {
			log.Fatalf("noisexx-demo: failed to load config: %v", err)
		}
		cfg = loaded
	}

	v := vault.NewSoftwareVault()

	initiatorStatic, initKeys, err := loadStaticKey(v, filepath.Join(cfg.StaticKeyPath, "initiator"), *masterPassword)
	if err != nil {
		log.Fatalf("noisexx-demo: failed to load initiator static key: %v", err)
	}
	defer initKeys.Close()
	responderStatic, respKeys, err := loadStaticKey(v, filepath.Join(cfg.StaticKeyPath, "responder"), *masterPassword)
	if err != nil {
		log.Fatalf("noisexx-demo: failed to load responder static key: %v", err)
	}
	defer respKeys.Close()

	replay, err := session.NewReplayGuard(cfg.ReplayStorePath)
	if err != nil {
		log.Fatalf("noisexx-demo: failed to open replay guard: %v", err)
	}
	defer replay.Close()

	initMgr := session.NewManagerWithTimeouts(v, initiatorStatic, cfg.Session.HandshakeTimeout(), cfg.Session.IdleTimeout(), cfg.Session.CleanupInterval())
	respMgr := session.NewManagerWithReplayGuard(v, responderStatic, cfg.Session.HandshakeTimeout(), cfg.Session.IdleTimeout(), cfg.Session.CleanupInterval(), nil, replay)
	defer initMgr.Close()
	defer respMgr.Close()

	initPeer, err := initMgr.Start("responder@demo", noise.Initiator)
	if err != nil {
		log.Fatalf("noisexx-demo: failed to start initiator session: %v", err)
	}
	respPeer, err := respMgr.Start("initiator@demo", noise.Responder)
	if err != nil {
		log.Fatalf("noisexx-demo: failed to start responder session: %v", err)
	}

	if err := runHandshake(initMgr, respMgr, initPeer, respPeer); err != nil {
		log.Fatalf("noisexx-demo: handshake failed: %v", err)
	}
	initMgr.Complete(initPeer.ID)
	respMgr.Complete(respPeer.ID)

	initEnc, initDec, _ := initPeer.Keys()
	respEnc, respDec, _ := respPeer.Keys()

	fmt.Printf("initiator encryption handle: %s\n", initEnc)
	fmt.Printf("initiator decryption handle: %s\n", initDec)
	fmt.Printf("responder encryption handle: %s\n", respEnc)
	fmt.Printf("responder decryption handle: %s\n", respDec)
	fmt.Println("handshake complete: both sides hold matched traffic keys")
}

// loadStaticKey opens an encrypted static-key store under dataDir and
// recovers (or generates on first run) the identity key it holds, importing
// it into v.
func loadStaticKey(v vault.Vault, dataDir, masterPassword string) (vault.Handle, *vault.StaticKeyStore, error) {
	store, err := vault.NewStaticKeyStore(dataDir, []byte(masterPassword))
	if err != nil {
		return "", nil, fmt.Errorf("open static key store: %w", err)
	}
	h, err := store.LoadOrGenerate(v)
	if err != nil {
		store.Close()
		return "", nil, fmt.Errorf("load or generate static key: %w", err)
	}
	return h, store, nil
}

// runHandshake drives the three Noise_XX messages between the two sessions
// with empty payloads, as a transport collaborator would after receiving
// each wire message. Message 1 is decoded through the responder's manager so
// its ReplayGuard checks the ephemeral key before the engine ever sees it.
func runHandshake(initMgr, respMgr *session.Manager, initPeer, respPeer *session.Peer) error {
	msg1, err := initPeer.Engine().EncodeMessage1(nil)
	if err != nil {
		return fmt.Errorf("encode_message1: %w", err)
	}
	if _, err := respMgr.DecodeMessage1(respPeer.ID, msg1); err != nil {
		return fmt.Errorf("decode_message1: %w", err)
	}

	msg2, err := respPeer.Engine().EncodeMessage2(nil)
	if err != nil {
		return fmt.Errorf("encode_message2: %w", err)
	}
	if _, err := initPeer.Engine().DecodeMessage2(msg2); err != nil {
		return fmt.Errorf("decode_message2: %w", err)
	}

	msg3, err := initPeer.Engine().EncodeMessage3(nil)
	if err != nil {
		return fmt.Errorf("encode_message3: %w", err)
	}
	if _, err := respPeer.Engine().DecodeMessage3(msg3); err != nil {
		return fmt.Errorf("decode_message3: %w", err)
	}

	if err := initPeer.Engine().Finalize(noise.Initiator); err != nil {
		return fmt.Errorf("initiator finalize: %w", err)
	}
	if err := respPeer.Engine().Finalize(noise.Responder); err != nil {
		return fmt.Errorf("responder finalize: %w", err)
	}
	return nil
}
