// Copyright (C) 2022 - Tillitis AB
// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/pflag"
	"github.com/tillitis/blakesig/b2sign"
	"github.com/tillitis/blakesig/b2ssh"
	"github.com/tillitis/blakesig/internal/config"
	"github.com/tillitis/blakesig/internal/util"
	"github.com/tillitis/blakesig/seedstore"
)

const commentPrefix = "blakesig"

// seedFlags are shared by all commands that open the seed file.
type seedFlags struct {
	seedFile       string
	passphraseFile string
	// Read for --passphrase-file -
	stdin io.Reader
}

func (f *seedFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.seedFile, "seed-file", "s", defaultSeedFile(),
		"Encrypted seed `FILE`.")
	fs.StringVar(&f.passphraseFile, "passphrase-file", "",
		"Read the passphrase from `FILE` instead of the terminal. Use '-' (dash) to read from stdin.")
}

func (f *seedFlags) path() (string, error) {
	if f.seedFile == "" {
		return "", usagef("Please pass --seed-file")
	}
	return config.ExpandHome(f.seedFile), nil
}

func (f *seedFlags) passphrase(confirm bool) ([]byte, error) {
	if f.passphraseFile != "" {
		var pass []byte
		var err error
		if f.passphraseFile == "-" {
			pass, err = util.ReadSecret(f.stdin)
		} else {
			pass, err = util.ReadSecretFile(f.passphraseFile)
		}
		if err != nil {
			return nil, fmt.Errorf("Could not read passphrase: %w", err)
		}
		return pass, nil
	}
	return util.ReadPassphrase("Passphrase for the seed", confirm)
}

func (f *seedFlags) open() (b2sign.Seed, error) {
	path, err := f.path()
	if err != nil {
		return b2sign.Seed{}, err
	}
	env, err := seedstore.Load(path)
	if err != nil {
		return b2sign.Seed{}, fmt.Errorf("Could not read seed file: %w", err)
	}
	pass, err := f.passphrase(false)
	if err != nil {
		return b2sign.Seed{}, err
	}
	defer clear(pass)

	seed, err := seedstore.Decrypt(env, pass)
	if err != nil {
		return b2sign.Seed{}, fmt.Errorf("Could not decrypt %s: %w", path, err)
	}
	return seed, nil
}

// store encrypts seed and writes it to the seed file, which must not
// exist unless force is set.
func (f *seedFlags) store(seed b2sign.Seed, force bool) error {
	path, err := f.path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s exists, pass --force to overwrite", path)
	}

	pass, err := f.passphrase(true)
	if err != nil {
		return err
	}
	defer clear(pass)

	env, err := seedstore.Encrypt(seed, pass)
	if err != nil {
		return fmt.Errorf("Encrypt: %w", err)
	}
	if err := seedstore.Save(path, env); err != nil {
		return fmt.Errorf("Could not write %s: %w", path, err)
	}
	return nil
}

func formatFlag(fs *pflag.FlagSet) *string {
	return fs.StringP("format", "f", string(util.FormatHex),
		"Write and read keys and signatures as `FORMAT`, hex or base58.")
}

func (c *cli) seedNew(fs *pflag.FlagSet, args []string) error {
	sf := seedFlags{stdin: c.stdin}
	sf.register(fs)
	force := fs.Bool("force", false, "Overwrite an existing seed file.")
	showMnemonic := fs.Bool("show-mnemonic", false,
		"Also print the new seed as a mnemonic on stdout, for backup.")
	if err := parse(fs, args); err != nil {
		return err
	}

	seed, err := seedstore.NewSeed(c.rand)
	if err != nil {
		return err
	}
	defer seed.Zero()

	if err := sf.store(seed, *force); err != nil {
		return err
	}
	path, _ := sf.path()
	c.le.Printf("New seed stored in %s\n", path)

	if *showMnemonic {
		return c.printMnemonic(seed)
	}
	c.le.Printf("Back it up with '%s seed-mnemonic'.\n", progname)
	return nil
}

func (c *cli) seedImport(fs *pflag.FlagSet, args []string) error {
	sf := seedFlags{stdin: c.stdin}
	sf.register(fs)
	from := fs.String("from", "-",
		"Read the seed from `FILE`. Use '-' (dash) to read from stdin.")
	isHex := fs.Bool("hex", false, "The seed is 64 hex digits instead of a mnemonic.")
	force := fs.Bool("force", false, "Overwrite an existing seed file.")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *from == "-" && sf.passphraseFile == "-" {
		return usagef("Only one of --from and --passphrase-file can read stdin")
	}

	input, err := c.readInput(*from)
	if err != nil {
		return err
	}
	defer clear(input)

	var seed b2sign.Seed
	if *isHex {
		seed, err = seedstore.SeedFromHex(string(input))
	} else {
		seed, err = seedstore.SeedFromMnemonic(string(input))
	}
	if err != nil {
		return err
	}
	defer seed.Zero()

	if err := sf.store(seed, *force); err != nil {
		return err
	}
	path, _ := sf.path()
	c.le.Printf("Seed stored in %s\n", path)
	return nil
}

func (c *cli) seedMnemonic(fs *pflag.FlagSet, args []string) error {
	sf := seedFlags{stdin: c.stdin}
	sf.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}

	seed, err := sf.open()
	if err != nil {
		return err
	}
	defer seed.Zero()

	return c.printMnemonic(seed)
}

func (c *cli) printMnemonic(seed b2sign.Seed) error {
	words, err := seedstore.MnemonicFromSeed(seed)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, words)
	return nil
}

func (c *cli) pubkey(fs *pflag.FlagSet, args []string) error {
	sf := seedFlags{stdin: c.stdin}
	sf.register(fs)
	index := fs.Uint32P("index", "i", 0, "Account `INDEX`.")
	format := formatFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	f, err := util.ParseFormat(*format)
	if err != nil {
		return usageError{msg: err.Error()}
	}

	sk, err := c.secretKey(&sf, *index)
	if err != nil {
		return err
	}
	defer sk.Zero()

	pub := b2sign.PublicKeyFromSecret(sk)
	fmt.Fprintln(c.stdout, f.Encode(pub[:]))
	return nil
}

func (c *cli) sign(fs *pflag.FlagSet, args []string) error {
	sf := seedFlags{stdin: c.stdin}
	sf.register(fs)
	index := fs.Uint32P("index", "i", 0, "Account `INDEX`.")
	file := fs.String("file", "-",
		"Read the message to sign from `FILE`. Use '-' (dash) to read from stdin.")
	randomized := fs.Bool("randomized", false,
		"Mix fresh randomness into the nonce. The signature then differs each time but verifies the same.")
	format := formatFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	f, err := util.ParseFormat(*format)
	if err != nil {
		return usageError{msg: err.Error()}
	}
	if *file == "-" && sf.passphraseFile == "-" {
		return usagef("Only one of --file and --passphrase-file can read stdin")
	}

	message, err := c.readInput(*file)
	if err != nil {
		return err
	}

	sk, err := c.secretKey(&sf, *index)
	if err != nil {
		return err
	}
	defer sk.Zero()

	var sig b2sign.Signature
	if *randomized {
		if sig, err = b2sign.SignWithRandomness(message, sk, c.rand); err != nil {
			return err
		}
	} else {
		sig = b2sign.Sign(message, sk)
	}
	fmt.Fprintln(c.stdout, f.Encode(sig[:]))
	return nil
}

func (c *cli) verify(fs *pflag.FlagSet, args []string) error {
	pubStr := fs.StringP("pubkey", "k", "", "Public `KEY` to verify with.")
	sigStr := fs.String("signature", "", "`SIGNATURE` to verify.")
	file := fs.String("file", "-",
		"Read the signed message from `FILE`. Use '-' (dash) to read from stdin.")
	format := formatFlag(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *pubStr == "" || *sigStr == "" {
		return usagef("Please pass --pubkey and --signature")
	}
	f, err := util.ParseFormat(*format)
	if err != nil {
		return usageError{msg: err.Error()}
	}

	pub, err := f.Decode(*pubStr)
	if err != nil {
		return fmt.Errorf("public key: %w", err)
	}
	sig, err := f.Decode(*sigStr)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	message, err := c.readInput(*file)
	if err != nil {
		return err
	}

	ok, err := b2sign.VerifySlices(message, sig, pub)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(c.stdout, "Signature did NOT verify.\n")
		return errQuiet
	}
	fmt.Fprintf(c.stdout, "Signature verified.\n")
	return nil
}

func (c *cli) authorizedKey(fs *pflag.FlagSet, args []string) error {
	sf := seedFlags{stdin: c.stdin}
	sf.register(fs)
	indices := fs.UintSliceP("index", "i", []uint{0},
		"Account `INDEX`. Repeat or separate with commas for several keys.")
	if err := parse(fs, args); err != nil {
		return err
	}
	for _, idx := range *indices {
		if idx > math.MaxUint32 {
			return usagef("Account index %d out of range", idx)
		}
	}

	seed, err := sf.open()
	if err != nil {
		return err
	}
	defer seed.Zero()

	for _, idx := range *indices {
		sk := b2sign.DerivePrivateKey(seed, uint32(idx))
		pub := b2sign.PublicKeyFromSecret(sk)
		sk.Zero()

		comment := fmt.Sprintf("%s/%d", commentPrefix, idx)
		if _, err := c.stdout.Write(b2ssh.MarshalAuthorizedKey(b2ssh.PublicKey(pub), comment)); err != nil {
			return fmt.Errorf("Write: %w", err)
		}
	}
	return nil
}

func (c *cli) secretKey(sf *seedFlags, index uint32) (b2sign.SecretKey, error) {
	seed, err := sf.open()
	if err != nil {
		return b2sign.SecretKey{}, err
	}
	defer seed.Zero()
	return b2sign.DerivePrivateKey(seed, index), nil
}

func (c *cli) readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return nil, fmt.Errorf("ReadAll: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Could not read %s: %w", path, err)
	}
	return data, nil
}
