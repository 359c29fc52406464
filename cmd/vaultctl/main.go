package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"stablevault/cmd/internal/passphrase"
	"stablevault/config"
	"stablevault/crypto"
	"stablevault/integrations/indexer"
	"stablevault/rpc"
)

const (
	keygenCommand = "keygen"
	addressCmd    = "address"
	tokenCommand  = "token"
	callCommand   = "call"
	exportCommand = "export-events"

	defaultKeystore = "owner.keystore"
	defaultRPCURL   = "http://127.0.0.1:8645/rpc"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	if err := dispatch(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(command string, args []string, out io.Writer) error {
	switch command {
	case keygenCommand:
		return runKeygen(args, out)
	case addressCmd:
		return runAddress(args, out)
	case tokenCommand:
		return runToken(args, out)
	case callCommand:
		return runCall(args, out)
	case exportCommand:
		return runExport(args, out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: vaultctl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keygen         create a new encrypted account keystore")
	fmt.Fprintln(w, "  address        print the account held by a keystore")
	fmt.Fprintln(w, "  token          issue an RPC bearer token for an account")
	fmt.Fprintln(w, "  call           invoke a JSON-RPC method")
	fmt.Fprintln(w, "  export-events  write indexed events to a parquet file")
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Output path for the keystore file")
	passEnv := fs.String("pass-env", config.DefaultPassphraseEnv, "Environment variable containing the keystore passphrase")
	light := fs.Bool("light", false, "Use light scrypt parameters (tests and development only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*keystorePath); err == nil {
		return fmt.Errorf("keystore file %s already exists", *keystorePath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	pass, err := passphrase.NewSource(*passEnv, "new keystore").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	params := crypto.StandardScrypt
	if *light {
		params = crypto.LightScrypt
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass, params); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintln(out, key.PubKey().Address().String())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCmd, flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Path to the keystore file")
	passEnv := fs.String("pass-env", config.DefaultPassphraseEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr, err := keystoreAddress(*keystorePath, *passEnv)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr.String())
	return nil
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", "", "Keystore whose account becomes the token subject")
	passEnv := fs.String("pass-env", config.DefaultPassphraseEnv, "Environment variable containing the keystore passphrase")
	subject := fs.String("subject", "", "Account address to use as subject instead of a keystore")
	secretEnv := fs.String("secret-env", config.DefaultJWTSecretEnv, "Environment variable containing the RPC signing secret")
	issuer := fs.String("issuer", "stablevault", "Token issuer; must match the daemon's rpc Issuer")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var addr crypto.Address
	switch {
	case strings.TrimSpace(*subject) != "":
		decoded, err := crypto.DecodeAddress(strings.TrimSpace(*subject))
		if err != nil {
			return fmt.Errorf("subject: %w", err)
		}
		addr = decoded
	case *keystorePath != "":
		decoded, err := keystoreAddress(*keystorePath, *passEnv)
		if err != nil {
			return err
		}
		addr = decoded
	default:
		return errors.New("one of -subject or -keystore is required")
	}

	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("environment variable %s is not set", *secretEnv)
	}
	token, err := rpc.IssueToken(secret, *issuer, addr, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runCall(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(callCommand, flag.ContinueOnError)
	endpoint := fs.String("rpc", envOr("STABLEVAULT_RPC_URL", defaultRPCURL), "JSON-RPC endpoint")
	token := fs.String("token", os.Getenv("STABLEVAULT_RPC_TOKEN"), "Bearer token")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return errors.New("usage: vaultctl call [flags] <method> [params-json]")
	}
	var params json.RawMessage
	if len(rest) > 1 {
		params = json.RawMessage(rest[1])
		if !json.Valid(params) {
			return errors.New("params must be valid JSON")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	client := newClient(*endpoint, *token)
	result, err := client.Call(ctx, rest[0], params)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	driver := fs.String("driver", "sqlite", "Indexer driver (sqlite or postgres)")
	dsn := fs.String("dsn", "", "Indexer DSN, for sqlite the database file")
	output := fs.String("out", "events.parquet", "Destination parquet file")
	eventType := fs.String("type", "", "Only export events of this type")
	vaultID := fs.Int64("vault", -1, "Only export events of this vault")
	after := fs.Uint64("after", 0, "Only export events with a greater sequence")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*dsn) == "" {
		return errors.New("-dsn is required")
	}
	store, err := indexer.Open(*driver, *dsn, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := indexer.Filter{Type: strings.TrimSpace(*eventType), AfterSequence: *after}
	if *vaultID >= 0 {
		id := uint64(*vaultID)
		filter.VaultID = &id
	}
	n, err := store.ExportParquet(context.Background(), *output, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported %d events to %s\n", n, *output)
	return nil
}

func keystoreAddress(path, passEnv string) (crypto.Address, error) {
	pass, err := passphrase.NewSource(passEnv, "keystore").Get()
	if err != nil {
		return crypto.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return crypto.Address{}, err
	}
	return key.PubKey().Address(), nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
