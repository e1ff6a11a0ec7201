package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"treasury/cmd/internal/passphrase"
	"treasury/crypto"
	svcconfig "treasury/services/treasuryd/config"
	"treasury/services/treasuryd/journal"
	"treasury/services/treasuryd/server"
)

const defaultEndpoint = "http://localhost:7080"

type cli struct {
	endpoint string
	out      io.Writer
	token    *passphrase.Source
	secret   *passphrase.Source
}

func main() {
	c := &cli{
		endpoint: defaultEndpoint,
		out:      os.Stdout,
		token:    passphrase.NewSource("TREASURY_TOKEN", "bearer token"),
		secret:   passphrase.NewSource("TREASURY_HMAC_SECRET", "HMAC secret"),
	}
	if env := strings.TrimSpace(os.Getenv("TREASURY_URL")); env != "" {
		c.endpoint = env
	}
	if err := c.run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, args []string) error {
	args, err := c.applyGlobalFlags(args)
	if err != nil {
		return err
	}
	if len(args) < 1 {
		c.printUsage()
		return nil
	}
	rest := args[1:]
	switch args[0] {
	case "invoke":
		return c.invoke(ctx, rest)
	case "state":
		if len(rest) != 1 {
			return fmt.Errorf("usage: state <controller>")
		}
		return c.get(ctx, "/v1/controllers/"+rest[0])
	case "journal":
		return c.journal(ctx, rest)
	case "token":
		return c.issueToken(rest)
	case "export":
		return c.export(ctx, rest)
	case "address":
		return c.address(rest)
	case "help", "-h", "--help":
		c.printUsage()
		return nil
	default:
		c.printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (c *cli) applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--url" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --url")
			}
			c.endpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--url=") {
			c.endpoint = strings.TrimPrefix(arg, "--url=")
			continue
		}
		out = append(out, arg)
	}
	c.endpoint = strings.TrimRight(c.endpoint, "/")
	return out, nil
}

func (c *cli) invoke(ctx context.Context, args []string) error {
	var (
		positional []string
		req        server.InvokeRequest
	)
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case arg == "--amount" || arg == "--id":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for %s", arg)
			}
			if err := setInvokeFlag(&req, arg, args[i+1]); err != nil {
				return err
			}
			i++
		case strings.HasPrefix(arg, "--amount=") || strings.HasPrefix(arg, "--id="):
			name, value, _ := strings.Cut(arg, "=")
			if err := setInvokeFlag(&req, name, value); err != nil {
				return err
			}
		default:
			positional = append(positional, arg)
		}
	}
	if len(positional) < 2 || len(positional) > 3 {
		return fmt.Errorf("usage: invoke <controller> <entrypoint> [payload-json] [--amount mutez] [--id receipt-id]")
	}
	if len(positional) == 3 {
		if !json.Valid([]byte(positional[2])) {
			return fmt.Errorf("payload is not valid JSON")
		}
		req.Payload = json.RawMessage(positional[2])
	}
	token, err := c.token.Get()
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return c.post(ctx, "/v1/controllers/"+positional[0]+"/"+positional[1], token, body)
}

func setInvokeFlag(req *server.InvokeRequest, name, value string) error {
	switch name {
	case "--amount":
		amount, err := uint256.FromDecimal(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", value, err)
		}
		req.Amount = amount
	case "--id":
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("--id must be a uuid: %w", err)
		}
		req.ID = id.String()
	}
	return nil
}

func (c *cli) journal(ctx context.Context, args []string) error {
	query := make([]string, 0, 2)
	if len(args) > 0 && args[0] != "" {
		query = append(query, "controller="+args[0])
	}
	if len(args) > 1 {
		limit, err := strconv.Atoi(args[1])
		if err != nil || limit <= 0 {
			return fmt.Errorf("invalid limit %q", args[1])
		}
		query = append(query, "limit="+strconv.Itoa(limit))
	}
	path := "/v1/journal"
	if len(query) > 0 {
		path += "?" + strings.Join(query, "&")
	}
	return c.get(ctx, path)
}

func (c *cli) issueToken(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: token <caller-address> [ttl]")
	}
	caller, err := crypto.DecodeAddress(args[0])
	if err != nil {
		return err
	}
	ttl := time.Hour
	if len(args) == 2 {
		if ttl, err = time.ParseDuration(args[1]); err != nil {
			return fmt.Errorf("invalid ttl: %w", err)
		}
	}
	secret, err := c.secret.Get()
	if err != nil {
		return err
	}
	token, err := server.IssueToken(secret, strings.TrimSpace(os.Getenv("TREASURY_ISSUER")), strings.TrimSpace(os.Getenv("TREASURY_AUDIENCE")), caller, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, token)
	return nil
}

func (c *cli) export(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: export <treasuryd-config.yaml> <out.parquet>")
	}
	cfg, err := svcconfig.Load(args[0])
	if err != nil {
		return err
	}
	j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN, nil)
	if err != nil {
		return err
	}
	defer j.Close()
	count, err := j.ExportParquet(ctx, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "exported %d receipts to %s\n", count, args[1])
	return nil
}

func (c *cli) address(args []string) error {
	switch len(args) {
	case 1:
		addr, err := crypto.DecodeAddress(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "kind: %s\npayload: %s\n", addr.Kind(), hex.EncodeToString(addr.Bytes()))
		return nil
	case 2:
		kind := crypto.AddressKind(args[0])
		switch kind {
		case crypto.ImplicitEd25519, crypto.ImplicitSecp256k1, crypto.ImplicitP256, crypto.Originated:
		default:
			return fmt.Errorf("unknown address kind %q", args[0])
		}
		payload, err := hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
		if err != nil || len(payload) != 20 {
			return fmt.Errorf("payload must be 20 hex-encoded bytes")
		}
		fmt.Fprintln(c.out, crypto.NewAddress(kind, payload).String())
		return nil
	default:
		return fmt.Errorf("usage: address <address> | address <tz1|tz2|tz3|KT1> <hex-payload>")
	}
}

func (c *cli) printUsage() {
	fmt.Fprintln(c.out, "Usage: treasury-cli [--url endpoint] <command> [arguments]")
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Commands:")
	fmt.Fprintln(c.out, "  invoke <controller> <entrypoint> [payload-json] [--amount mutez] [--id receipt-id]")
	fmt.Fprintln(c.out, "                                    - Calls a controller entrypoint (token from TREASURY_TOKEN or prompt)")
	fmt.Fprintln(c.out, "  state <controller>                - Prints a controller's stored configuration")
	fmt.Fprintln(c.out, "  journal [controller] [limit]      - Lists recent receipts")
	fmt.Fprintln(c.out, "  token <caller-address> [ttl]      - Issues a bearer token (secret from TREASURY_HMAC_SECRET or prompt)")
	fmt.Fprintln(c.out, "  export <config.yaml> <out.parquet> - Exports the receipt journal to Parquet")
	fmt.Fprintln(c.out, "  address <address>                - Decodes an address")
	fmt.Fprintln(c.out, "  address <kind> <hex-payload>      - Encodes a 20-byte payload as an address")
}
