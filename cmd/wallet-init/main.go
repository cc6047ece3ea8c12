package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/betbot/arbot/pkg/secretstore"
)

const defaultDerivationPath = "m/44'/60'/0'/0/0"

func main() {
	var (
		storePath  = flag.String("store", getenv("ARBOT_KEYSTORE_PATH", "data/keystore"), "keystore directory")
		derivePath = flag.String("path", defaultDerivationPath, "BIP44 derivation path (mnemonic mode)")
		fromKey    = flag.Bool("from-key", false, "read a raw private key instead of a mnemonic")
		force      = flag.Bool("force", false, "overwrite existing key if present")
	)
	flag.Parse()

	encKey, err := secretstore.ParseKey(os.Getenv("ARBOT_KEYSTORE_KEY"))
	if err != nil {
		fatal(fmt.Errorf("parse ARBOT_KEYSTORE_KEY: %w", err))
	}
	if encKey == nil {
		fatal(errors.New("ARBOT_KEYSTORE_KEY is required (32 bytes, base64 or hex)"))
	}

	var pkHex string
	if *fromKey {
		fmt.Fprintln(os.Stderr, "请输入私钥（hex），输入完成后回车：")
		pkHex = strings.TrimPrefix(strings.TrimSpace(readLine()), "0x")
	} else {
		fmt.Fprintln(os.Stderr, "请输入助记词（12/15/18/21/24 个单词），输入完成后回车：")
		mnemonic := strings.TrimSpace(readLine())
		if mnemonic == "" {
			fatal(errors.New("mnemonic is empty"))
		}
		pkHex, err = derivePrivateKey(mnemonic, *derivePath)
		if err != nil {
			fatal(err)
		}
	}

	key, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		fatal(fmt.Errorf("invalid private key: %w", err))
	}
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *storePath,
		EncryptionKey: encKey,
	})
	if err != nil {
		fatal(fmt.Errorf("open keystore: %w", err))
	}
	defer store.Close()

	if _, found, err := store.GetString(secretstore.KeyPrivateKey); err != nil {
		fatal(err)
	} else if found && !*force {
		fatal(errors.New("keystore already holds a private key (use -force to overwrite)"))
	}

	if err := store.SetString(secretstore.KeyPrivateKey, pkHex); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "已写入 keystore：%s\n交易地址：%s\n", *storePath, address)
}

func derivePrivateKey(mnemonic, derivationPath string) (string, error) {
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return "", fmt.Errorf("invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return "", fmt.Errorf("invalid derivation path: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return "", fmt.Errorf("derive failed: %w", err)
	}
	return w.PrivateKeyHex(acct)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
