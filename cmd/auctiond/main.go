package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	badger "github.com/textileio/go-ds-badger3"

	"github.com/cloudx-io/creditauction/common"
	"github.com/cloudx-io/creditauction/core"
	"github.com/cloudx-io/creditauction/ledger"
	"github.com/cloudx-io/creditauction/node"
	"github.com/cloudx-io/creditauction/receipt"
)

var (
	cliName         = "auctiond"
	defaultRepoPath = filepath.Join(os.Getenv("HOME"), "."+cliName)
	log             = logging.Logger(cliName)

	daemonV  = viper.New()
	verifyV  = viper.New()
	accountV = viper.New()
	callV    = viper.New()
)

func init() {
	_ = godotenv.Load(".env")
	repoPath := os.Getenv("AUCTIOND_REPO")
	if repoPath == "" {
		repoPath = defaultRepoPath
	}
	_ = godotenv.Load(filepath.Join(repoPath, ".env"))

	rootCmd.AddCommand(daemonCmd, verifyReceiptCmd, accountCmd, signCallCmd)

	daemonFlags := []common.Flag{
		{Name: "repo", DefValue: defaultRepoPath, Description: "Repo path holding the ledger and receipt key"},
		{Name: "listen", DefValue: "tcp://127.0.0.1:5005", Description: "Listen address, tcp://host:port or vsock://port"},
		{Name: "max-workers", DefValue: 8, Description: "Maximum connections handled at once"},
		{Name: "read-timeout", DefValue: 30 * time.Second, Description: "Time a client has to send its request"},
		{Name: "genesis", DefValue: "", Description: "Genesis file applied to an empty ledger"},
		{Name: "enclave", DefValue: false, Description: "Attest the receipt key with the Nitro secure module"},
		{Name: "log-debug", DefValue: false, Description: "Enable debug level log"},
		{Name: "log-json", DefValue: false, Description: "Enable structured logging"},
	}
	verifyFlags := []common.Flag{
		{Name: "public-key", DefValue: "", Description: "PEM file with the receipt public key; required"},
		{Name: "attestation", DefValue: "", Description: "File with a base64 Nitro attestation of the receipt key"},
		{Name: "pcrs", DefValue: "", Description: "JSON file of known enclave PCR sets the attestation must match"},
		{Name: "token", DefValue: "", Description: "Token contract of a transfer to look for"},
		{Name: "recipient", DefValue: "", Description: "Recipient of a transfer to look for"},
		{Name: "amount", DefValue: "", Description: "Amount of a transfer to look for"},
		{Name: "decimals", DefValue: 0, Description: "Token decimals of --amount; 0 reads it in the smallest unit"},
	}
	accountFlags := []common.Flag{
		{Name: "key", DefValue: filepath.Join(defaultRepoPath, "account.pem"), Description: "PEM file with the account key; created when missing"},
	}
	callFlags := []common.Flag{
		{Name: "key", DefValue: filepath.Join(defaultRepoPath, "account.pem"), Description: "PEM file with the account key signing the call"},
		{Name: "type", DefValue: node.RequestExecute, Description: "Request type, execute or instantiate"},
		{Name: "contract", DefValue: "", Description: "Contract to execute"},
		{Name: "code", DefValue: "", Description: "Code to instantiate"},
		{Name: "ttl", DefValue: node.MaxCallTTL, Description: "Time until the signed call expires"},
	}

	common.ConfigureCLI(daemonV, "AUCTIOND", daemonFlags, daemonCmd.PersistentFlags())
	common.ConfigureCLI(verifyV, "AUCTIOND", verifyFlags, verifyReceiptCmd.PersistentFlags())
	common.ConfigureCLI(accountV, "AUCTIOND", accountFlags, accountCmd.PersistentFlags())
	common.ConfigureCLI(callV, "AUCTIOND", callFlags, signCallCmd.PersistentFlags())
}

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "auctiond settles credit-scored token auctions",
	Long: `auctiond settles credit-scored token auctions.

It runs a serial contract ledger with built-in token, oracle and auction code
behind a JSON socket, and signs a receipt for every executed transaction.
`,
	Args: cobra.ExactArgs(0),
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the auction ledger daemon",
	Long:  "Run the auction ledger daemon, answering one JSON request per connection.",
	Args:  cobra.ExactArgs(0),
	PersistentPreRun: func(c *cobra.Command, args []string) {
		common.ExpandEnvVars(daemonV, daemonV.AllSettings())
		err := common.ConfigureLogging(daemonV, []string{
			cliName,
			"auction/node",
			"auction/ledger",
			"auction/contract",
		})
		common.CheckErrf("setting log levels: %v", err)
	},
	Run: func(c *cobra.Command, args []string) {
		settings, err := common.MarshalConfig(daemonV, !daemonV.GetBool("log-json"))
		common.CheckErrf("marshaling config: %v", err)
		log.Infof("loaded config: %s", string(settings))

		ctx, cancel := context.WithCancel(context.Background())
		fin := common.NewFinalizer()
		fin.Add(common.NewContextCloser(cancel))
		checkErrf := func(format string, err error) {
			if err != nil {
				common.CheckErr(fin.Cleanupf(format, err))
			}
		}

		repo := daemonV.GetString("repo")
		err = os.MkdirAll(filepath.Join(repo, "ledger"), os.ModePerm)
		common.CheckErrf("creating repo: %v", err)
		store, err := badger.NewDatastore(filepath.Join(repo, "ledger"), &badger.DefaultOptions)
		common.CheckErrf("opening datastore: %v", err)
		fin.Add(store)

		host := ledger.NewHost(store)
		err = applyGenesis(ctx, host, daemonV.GetString("genesis"), repo)
		checkErrf("applying genesis: %w", err)

		key, err := receipt.LoadOrGenerateKey(filepath.Join(repo, "receipt.pem"))
		checkErrf("loading receipt key: %w", err)
		signer, err := receipt.NewSigner(key)
		checkErrf("creating receipt signer: %w", err)
		log.Infof("receipt key %s", signer.KeyID())

		var attestation []byte
		if daemonV.GetBool("enclave") {
			handle, err := enclave.GetOrInitializeHandle()
			checkErrf("NSM not available: %w", err)
			attestation, err = receipt.AttestKey(handle, signer)
			checkErrf("attesting receipt key: %w", err)
			log.Infof("receipt key attested: %s", humanize.Bytes(uint64(len(attestation))))
		}

		server, err := node.New(node.Config{
			MaxWorkers:  int64(daemonV.GetInt("max-workers")),
			ReadTimeout: daemonV.GetDuration("read-timeout"),
			Attestation: attestation,
		}, host, signer)
		checkErrf("creating server: %w", err)

		listener, err := node.Listen(daemonV.GetString("listen"))
		checkErrf("listening: %w", err)
		go func() {
			if err := server.Serve(ctx, listener); err != nil {
				log.Errorf("serving: %v", err)
			}
		}()
		fin.AddFn(func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer closeCancel()
			if err := server.Close(closeCtx); err != nil {
				log.Errorf("closing server: %v", err)
			}
		})

		common.HandleInterrupt(func() {
			common.CheckErr(fin.Cleanup(nil))
		})
	},
}

var verifyReceiptCmd = &cobra.Command{
	Use:   "verify-receipt [receipt]",
	Short: "Verify a settlement receipt",
	Long: `Verify a base64 settlement receipt against the daemon's receipt key.

The receipt may be given inline or as @path to a file holding it. With --token,
--recipient and --amount the receipt is also checked to include that transfer.`,
	Args: cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		signed, err := readReceipt(args[0])
		common.CheckErrf("reading receipt: %v", err)

		pemData, err := os.ReadFile(verifyV.GetString("public-key"))
		common.CheckErrf("reading public key: %v", err)
		pub, err := receipt.ParsePublicKeyPEM(pemData)
		common.CheckErrf("parsing public key: %v", err)

		if path := verifyV.GetString("attestation"); path != "" {
			att, err := readReceipt("@" + path)
			common.CheckErrf("reading attestation: %v", err)
			doc, err := receipt.VerifyAttestation(att, nil, pub)
			common.CheckErrf("verifying attestation: %v", err)
			fmt.Printf("Key attested by enclave %s (PCR0 %s)\n", doc.ModuleID, doc.PCR(0))
			if pcrPath := verifyV.GetString("pcrs"); pcrPath != "" {
				known, err := receipt.LoadPCRSets(pcrPath)
				common.CheckErrf("loading PCR sets: %v", err)
				set, err := receipt.MatchPCRs(doc, known)
				common.CheckErrf("checking measurements: %v", err)
				fmt.Printf("Enclave build matches commit %s\n", set.CommitHash)
			}
		}

		p, err := receipt.Verify(signed, pub)
		common.CheckErrf("verifying receipt: %v", err)
		fmt.Printf("Receipt for tx %s at height %s, %s\n", p.TxID, humanize.Comma(int64(p.Height)), humanize.Time(time.Unix(p.Time, 0)))
		fmt.Println(common.MustJSONIndent(p))

		token, recipient := verifyV.GetString("token"), verifyV.GetString("recipient")
		if token == "" && recipient == "" {
			return
		}
		decimals := verifyV.GetInt("decimals")
		amount, ok, err := includesTransfer(p, token, recipient, verifyV.GetString("amount"), decimals)
		common.CheckErr(err)
		if !ok {
			common.CheckErr(fmt.Errorf("transfer of %s %s to %s is not part of this settlement", amount.Format(uint8(decimals)), token, recipient))
		}
		fmt.Printf("Transfer of %s to %s is part of this settlement\n", amount.Format(uint8(decimals)), recipient)
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the account address of a key",
	Long: `Print the ledger account address controlled by an ECDSA P-256 key.

The key is created when the file does not exist yet.`,
	Args: cobra.ExactArgs(0),
	Run: func(c *cobra.Command, args []string) {
		key, err := loadAccountKey(accountV.GetString("key"))
		common.CheckErrf("loading account key: %v", err)
		addr, err := node.AccountOf(&key.PublicKey)
		common.CheckErr(err)
		fmt.Println(addr)
	},
}

var signCallCmd = &cobra.Command{
	Use:   "sign-call [msg]",
	Short: "Sign an instantiate or execute request",
	Long: `Sign a contract message with an account key and print the daemon request.

The message is the JSON contract message, given inline or as @path to a file.
The printed line can be sent to the daemon as is.`,
	Args: cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		key, err := loadAccountKey(callV.GetString("key"))
		common.CheckErrf("loading account key: %v", err)
		msg, err := readMsg(args[0])
		common.CheckErrf("reading message: %v", err)

		ttl := callV.GetDuration("ttl")
		if ttl <= 0 || ttl > node.MaxCallTTL {
			common.CheckErr(fmt.Errorf("ttl must be in (0, %s], got %s", node.MaxCallTTL, ttl))
		}
		req, err := node.SignCall(key, node.Call{
			Type:     callV.GetString("type"),
			Code:     callV.GetString("code"),
			Contract: callV.GetString("contract"),
			Msg:      msg,
			Expires:  time.Now().Add(ttl).Unix(),
		})
		common.CheckErrf("signing call: %v", err)
		out, err := json.Marshal(req)
		common.CheckErr(err)
		fmt.Println(string(out))
	},
}

func applyGenesis(ctx context.Context, host *ledger.Host, path, repo string) error {
	if path == "" {
		return nil
	}
	height, err := host.Height(ctx)
	if err != nil {
		return err
	}
	if height > 0 {
		log.Infof("ledger at height %s, skipping genesis", humanize.Comma(int64(height)))
		return nil
	}

	g, err := node.LoadGenesis(path)
	if err != nil {
		return err
	}
	deployment, err := g.Apply(ctx, host)
	if err != nil {
		return err
	}
	out := common.MustJSONIndent(deployment)
	log.Infof("deployed contracts: %s", out)
	return os.WriteFile(filepath.Join(repo, "deployment.json"), []byte(out), 0o644)
}

// readReceipt decodes a base64 value given inline or as @path.
func readReceipt(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		arg = string(data)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(arg))
}

// loadAccountKey loads the account key at path, creating it and its directory
// when missing.
func loadAccountKey(path string) (*ecdsa.PrivateKey, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return receipt.LoadOrGenerateKey(path)
}

// readMsg reads a JSON message given inline or as @path.
func readMsg(arg string) ([]byte, error) {
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("message is not valid JSON")
	}
	return data, nil
}

// includesTransfer parses amount with the token's decimals and reports whether
// p settles that transfer.
func includesTransfer(p *receipt.Payload, token, recipient, amount string, decimals int) (core.Amount, bool, error) {
	if token == "" || recipient == "" || amount == "" {
		return 0, false, errors.New("--token, --recipient and --amount are all required to check a transfer")
	}
	if decimals < 0 || decimals > math.MaxUint8 {
		return 0, false, fmt.Errorf("--decimals must be between 0 and %d, got %d", math.MaxUint8, decimals)
	}
	a, err := core.ParseTokenAmount(amount, uint8(decimals))
	if err != nil {
		return 0, false, fmt.Errorf("parsing amount: %w", err)
	}
	return a, p.Includes(token, recipient, a), nil
}

func main() {
	common.CheckErr(rootCmd.Execute())
}
