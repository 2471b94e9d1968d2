package connector

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest lists the keypair wallets a process exposes as connectors.
//
//	wallets:
//	  - id: wallet-standard:treasury
//	    name: Treasury
//	    keypair: ~/.config/solana/id.json
//	  - id: mwa:hot
//	    name: Hot wallet
//	    env: HOT_WALLET_KEY
//	    prompt: true
type Manifest struct {
	Wallets []ManifestWallet `yaml:"wallets"`
}

// ManifestWallet describes one connector. Exactly one of Keypair, Env and
// Mnemonic may be set as the silent source.
type ManifestWallet struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Label       string `yaml:"label"`
	Keypair     string `yaml:"keypair"`
	Env         string `yaml:"env"`
	Mnemonic    string `yaml:"mnemonic"`
	Prompt      bool   `yaml:"prompt"`
	AutoConnect *bool  `yaml:"autoConnect"`
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse wallet manifest: %w", err)
	}
	seen := make(map[string]struct{}, len(m.Wallets))
	for i, w := range m.Wallets {
		if w.ID == "" {
			return nil, fmt.Errorf("wallet %d: id is required", i)
		}
		if _, dup := seen[w.ID]; dup {
			return nil, fmt.Errorf("wallet %q: duplicate id", w.ID)
		}
		seen[w.ID] = struct{}{}

		sources := 0
		for _, s := range []string{w.Keypair, w.Env, w.Mnemonic} {
			if s != "" {
				sources++
			}
		}
		if sources > 1 {
			return nil, fmt.Errorf("wallet %q: keypair, env and mnemonic are mutually exclusive", w.ID)
		}
		if sources == 0 && !w.Prompt {
			return nil, fmt.Errorf("wallet %q: no key source", w.ID)
		}
	}
	return &m, nil
}

// Connectors builds keypair connectors for every wallet in the manifest.
// prompt supplies the interactive source for wallets with prompt enabled.
func (m *Manifest) Connectors(prompt func(name string) KeySource, opts ...KeypairOption) []Connector {
	out := make([]Connector, 0, len(m.Wallets))
	for _, w := range m.Wallets {
		var silent KeySource
		switch {
		case w.Keypair != "":
			silent = KeygenFile(w.Keypair)
		case w.Env != "":
			silent = Base58Env(w.Env)
		case w.Mnemonic != "":
			silent = Mnemonic(w.Mnemonic, "")
		}

		name := w.Name
		if name == "" {
			name = w.ID
		}

		walletOpts := append([]KeypairOption{}, opts...)
		if w.Label != "" {
			walletOpts = append(walletOpts, WithLabel(w.Label))
		}
		if w.Prompt && prompt != nil {
			walletOpts = append(walletOpts, WithPrompt(prompt(name)))
		}
		if w.AutoConnect != nil {
			walletOpts = append(walletOpts, WithAutoConnect(*w.AutoConnect))
		}
		out = append(out, NewKeypairConnector(w.ID, name, silent, walletOpts...))
	}
	return out
}
