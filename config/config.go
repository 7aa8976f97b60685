package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/memoio/go-voicemint/build"
	"github.com/memoio/go-voicemint/lib/address"
)

const (
	MetadataBackendLocal = "local"
	MetadataBackendIPFS  = "ipfs"
)

// Validators hold the list of validation functions for each configuration
// property. Validators must take a key and json string respectively as
// arguments, and must return either an error or nil depending on whether or not
// the given key and value are valid. Validators will only be run if a property
// being set matches the name given in this map.
var Validators = map[string]func(string, string) error{
	"chain.endpoint":        validateEndpoint,
	"contracts.nft":         validateAddress,
	"contracts.market":      validateAddress,
	"contracts.currency":    validateOptionalAddress,
	"metadata.backend":      validateBackend,
	"metadata.endpoint":     validateOptionalURL,
	"wallet.defaultAddress": validateOptionalAddress,
	"log.level":             validateLevel,
}

// Config is an in memory representation of the voicemint configuration file
type Config struct {
	Chain     ChainConfig     `json:"chain"`
	Contracts ContractsConfig `json:"contracts"`
	Metadata  MetadataConfig  `json:"metadata"`
	Wallet    WalletConfig    `json:"wallet"`
	Log       LogConfig       `json:"log"`
	Data      StorePathConfig `json:"data"`
}

type ChainConfig struct {
	Endpoint string `json:"endpoint"`
	// zero means ask the node
	ChainID        uint64   `json:"chainID,omitempty"`
	GasLimit       uint64   `json:"gasLimit"`
	PollInterval   Duration `json:"pollInterval"`
	ReceiptTimeout Duration `json:"receiptTimeout"`
}

func newDefaultChainConfig() ChainConfig {
	return ChainConfig{
		Endpoint:       "http://127.0.0.1:8545",
		GasLimit:       build.DefaultGasLimit,
		PollInterval:   Duration(build.ReceiptPollInterval),
		ReceiptTimeout: Duration(build.ReceiptTimeout),
	}
}

// ContractsConfig holds the deployed contract addresses. An empty currency
// means the native coin.
type ContractsConfig struct {
	NFT      string `json:"nft"`
	Market   string `json:"market"`
	Currency string `json:"currency,omitempty"`
	Decimals uint8  `json:"decimals"`
}

func newDefaultContractsConfig() ContractsConfig {
	return ContractsConfig{
		Decimals: build.NativeDecimals,
	}
}

type MetadataConfig struct {
	Backend  string `json:"backend"`
	Endpoint string `json:"endpoint,omitempty"`
}

type WalletConfig struct {
	DefaultAddress string `json:"defaultAddress,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file,omitempty"`
}

type StorePathConfig struct {
	MetaPath string `json:"metaPath,omitempty"`
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		Chain:     newDefaultChainConfig(),
		Contracts: newDefaultContractsConfig(),
		Metadata:  MetadataConfig{Backend: MetadataBackendLocal},
		Log:       LogConfig{Level: "info"},
	}
}

// Validate checks the whole configuration; callers fail fast on error
// before touching the network.
func (cfg *Config) Validate() error {
	if err := checkEndpoint(cfg.Chain.Endpoint); err != nil {
		return errors.Wrap(err, "chain.endpoint")
	}
	if cfg.Chain.GasLimit == 0 {
		return errors.New("chain.gasLimit must be positive")
	}
	if cfg.Chain.PollInterval <= 0 || cfg.Chain.ReceiptTimeout <= 0 {
		return errors.New("chain.pollInterval and chain.receiptTimeout must be positive")
	}

	if _, err := address.Parse(cfg.Contracts.NFT); err != nil {
		return errors.Wrapf(err, "contracts.nft %q", cfg.Contracts.NFT)
	}
	if _, err := address.Parse(cfg.Contracts.Market); err != nil {
		return errors.Wrapf(err, "contracts.market %q", cfg.Contracts.Market)
	}
	if _, err := address.ParseOptional(cfg.Contracts.Currency); err != nil {
		return errors.Wrapf(err, "contracts.currency %q", cfg.Contracts.Currency)
	}
	if cfg.Contracts.Currency == "" && cfg.Contracts.Decimals != build.NativeDecimals {
		return errors.Errorf("contracts.decimals %d: the native coin has %d, set contracts.currency for a token", cfg.Contracts.Decimals, build.NativeDecimals)
	}

	switch cfg.Metadata.Backend {
	case MetadataBackendLocal:
	case MetadataBackendIPFS:
		if err := checkURL(cfg.Metadata.Endpoint); err != nil {
			return errors.Wrap(err, "metadata.endpoint")
		}
	default:
		return errors.Errorf("metadata.backend %q: want %s or %s", cfg.Metadata.Backend, MetadataBackendLocal, MetadataBackendIPFS)
	}

	if _, err := address.ParseOptional(cfg.Wallet.DefaultAddress); err != nil {
		return errors.Wrapf(err, "wallet.defaultAddress %q", cfg.Wallet.DefaultAddress)
	}

	return nil
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	configString, err := json.MarshalIndent(*cfg, "", "\t")
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(f, string(configString))
	return err
}

// ReadFile reads a config file from disk.
func ReadFile(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck

	cfg := NewDefaultConfig()
	rawConfig, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(rawConfig) == 0 {
		return cfg, nil
	}

	err = json.Unmarshal(rawConfig, &cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Set sets the config sub-struct referenced by `key`, e.g. 'chain.endpoint'
// or 'contracts' to the json key value pair encoded in jsonVal.
func (cfg *Config) Set(dottedKey string, jsonString string) error {
	if !json.Valid([]byte(jsonString)) {
		jsonBytes, _ := json.Marshal(jsonString)
		jsonString = string(jsonBytes)
	}

	if err := validate(dottedKey, jsonString); err != nil {
		return err
	}

	keys := strings.Split(dottedKey, ".")
	for i := len(keys) - 1; i >= 0; i-- {
		jsonString = fmt.Sprintf(`{ "%s": %s }`, keys[i], jsonString)
	}

	decoder := json.NewDecoder(strings.NewReader(jsonString))
	decoder.DisallowUnknownFields()

	return decoder.Decode(&cfg)
}

// Get gets the config sub-struct referenced by `key`, e.g. 'chain.endpoint'
func (cfg *Config) Get(key string) (interface{}, error) {
	v := reflect.Indirect(reflect.ValueOf(cfg))
	keyTags := strings.Split(key, ".")
OUTER:
	for j, keyTag := range keyTags {
		if v.Type().Kind() == reflect.Struct {
			for i := 0; i < v.NumField(); i++ {
				jsonTag := strings.Split(
					v.Type().Field(i).Tag.Get("json"),
					",")[0]
				if jsonTag == keyTag {
					v = v.Field(i)
					if j == len(keyTags)-1 {
						return v.Interface(), nil
					}
					v = reflect.Indirect(v) // only attempt one dereference
					continue OUTER
				}
			}
		}

		return nil, fmt.Errorf("key: %s invalid for config", key)
	}
	// Cannot get here as len(strings.Split(s, sep)) >= 1 with non-empty sep
	return nil, fmt.Errorf("empty key is invalid")
}

// validate runs validations on a given key and json string. validate uses the
// validators map defined at the top of this file to determine which validations
// to use for each key.
func validate(dottedKey string, jsonString string) error {
	var obj interface{}
	if err := json.Unmarshal([]byte(jsonString), &obj); err != nil {
		return err
	}
	// recursively validate sub-keys by partially unmarshalling
	if reflect.ValueOf(obj).Kind() == reflect.Map {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(jsonString), &obj); err != nil {
			return err
		}
		for key := range obj {
			if err := validate(dottedKey+"."+key, string(obj[key])); err != nil {
				return err
			}
		}
		return nil
	}

	if validationFunc, present := Validators[dottedKey]; present {
		return validationFunc(dottedKey, jsonString)
	}

	return nil
}

func unquote(key, value string) (string, error) {
	var s string
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return "", errors.Errorf(`"%s" must be a string`, key)
	}
	return s, nil
}

func validateEndpoint(key, value string) error {
	s, err := unquote(key, value)
	if err != nil {
		return err
	}
	return errors.Wrapf(checkEndpoint(s), `"%s"`, key)
}

func validateOptionalURL(key, value string) error {
	s, err := unquote(key, value)
	if err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	return errors.Wrapf(checkURL(s), `"%s"`, key)
}

func validateAddress(key, value string) error {
	s, err := unquote(key, value)
	if err != nil {
		return err
	}
	_, err = address.Parse(s)
	return errors.Wrapf(err, `"%s"`, key)
}

func validateOptionalAddress(key, value string) error {
	s, err := unquote(key, value)
	if err != nil {
		return err
	}
	_, err = address.ParseOptional(s)
	return errors.Wrapf(err, `"%s"`, key)
}

func validateBackend(key, value string) error {
	s, err := unquote(key, value)
	if err != nil {
		return err
	}
	if s != MetadataBackendLocal && s != MetadataBackendIPFS {
		return errors.Errorf(`"%s" must be %s or %s`, key, MetadataBackendLocal, MetadataBackendIPFS)
	}
	return nil
}

func validateLevel(key, value string) error {
	s, err := unquote(key, value)
	if err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return errors.Errorf(`"%s" must be one of debug, info, warn, error`, key)
	}
}

// checkEndpoint accepts rpc urls the go-ethereum client can dial.
func checkEndpoint(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return errors.Errorf("unsupported scheme in %q", s)
	}
	if u.Host == "" {
		return errors.Errorf("missing host in %q", s)
	}
	return nil
}

func checkURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("%q is not an http(s) url", s)
	}
	return nil
}
