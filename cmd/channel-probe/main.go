// channel-probe connects to a TEE endpoint, prints a summary of its
// attestation, and optionally exercises the encrypted channel against an
// echo-style path. It is an operator diagnostic, not part of the protocol.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tee-channel/attestation"
	"tee-channel/client"
	"tee-channel/shared"
)

func main() {
	// .env is optional; environment wins over it
	_ = godotenv.Load()

	endpoint := flag.String("endpoint", shared.GetEnvOrDefault("CHANNEL_ENDPOINT", ""), "TEE endpoint base URL")
	echoPath := flag.String("echo", "", "optional path to POST an encrypted echo probe to")
	message := flag.String("message", "ping", "probe message for the encrypted echo")
	verify := flag.Bool("verify", shared.GetEnvBoolOrDefault("CHANNEL_VERIFY", false), "verify the attestation signature chain")
	trace := flag.Bool("trace", true, "print the step-by-step handshake trace")
	flag.Parse()

	logger, err := shared.NewLoggerFromEnv("channel_probe")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *endpoint == "" {
		logger.Fatal("No endpoint given; set -endpoint or CHANNEL_ENDPOINT")
	}

	cfg := client.ConfigFromEnv()
	cfg.Trace = *trace
	if *verify {
		cfg.Verifier = attestation.NewNitroVerifier(nil, logger.Logger)
	}

	c := client.New(cfg, logger.Logger)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := c.Connect(ctx, *endpoint); err != nil {
		dumpTrace(c)
		logger.Fatal("Connect failed", zap.Error(err))
	}

	doc := c.Document()
	logger.Info("Connected",
		zap.String("module_id", doc.ModuleID),
		zap.Uint64("timestamp", doc.Timestamp),
		zap.String("digest", doc.Digest),
		zap.Int("pcr_count", len(doc.PCRs)),
		zap.String("enclave_address", doc.EnclaveAddress))
	for idx, val := range doc.PCRs {
		logger.Info("PCR", zap.String("index", idx), zap.String("value", val))
	}

	if *echoPath != "" {
		resp, err := c.CallEncrypted(ctx, *echoPath, map[string]string{"msg": *message})
		if err != nil {
			dumpTrace(c)
			logger.Fatal("Encrypted probe failed", zap.Error(err))
		}
		logger.Info("Encrypted probe succeeded",
			zap.Bool("encrypted", resp.Encrypted),
			zap.String("sig", resp.Sig),
			zap.ByteString("data", resp.Data))
	}

	dumpTrace(c)
}

func dumpTrace(c *client.Client) {
	t := c.Trace()
	if t == nil {
		return
	}
	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, string(out))
}
