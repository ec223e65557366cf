package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for sigkit configuration
const (
	EnvPrivateKey        = "PRIVATE_KEY"
	EnvSigkitDebug       = "SIGKIT_DEBUG"
	EnvSigkitChainID     = "SIGKIT_CHAIN_ID"
	EnvSigkitSigner      = "SIGKIT_SIGNER"
	EnvSigkitAWSRegion   = "SIGKIT_AWS_REGION"
	EnvSigkitAWSProfile  = "SIGKIT_AWS_PROFILE"
	EnvSigkitKMSKeyID    = "SIGKIT_KMS_KEY_ID"
	EnvSigkitW3SURL      = "SIGKIT_WEB3SIGNER_URL"
	EnvSigkitW3SAddress  = "SIGKIT_WEB3SIGNER_ADDRESS"
	EnvSigkitRegistry    = "SIGKIT_REGISTRY"
	EnvSigkitBadgerPath  = "SIGKIT_BADGER_PATH"
	EnvSigkitRedisAddr   = "SIGKIT_REDIS_ADDR"
	EnvSigkitRedisPass   = "SIGKIT_REDIS_PASSWORD"
	EnvSigkitSQLDriver   = "SIGKIT_SQL_DRIVER"
	EnvSigkitSQLDSN      = "SIGKIT_SQL_DSN"
	EnvSigkitPort        = "SIGKIT_PORT"
	EnvSigkitRateLimit   = "SIGKIT_RATE_LIMIT"
	EnvSigkitRateBurst   = "SIGKIT_RATE_BURST"
	EnvSigkitReadTimeout = "SIGKIT_READ_TIMEOUT"
)

type SignerType string

func (s SignerType) String() string {
	return string(s)
}

const (
	SignerTypeNone       SignerType = ""
	SignerTypeLocal      SignerType = "local"
	SignerTypeAWSKMS     SignerType = "aws-kms"
	SignerTypeWeb3Signer SignerType = "web3signer"
)

type RegistryType string

func (r RegistryType) String() string {
	return string(r)
}

const (
	RegistryTypeMemory RegistryType = "memory"
	RegistryTypeBadger RegistryType = "badger"
	RegistryTypeRedis  RegistryType = "redis"
	RegistryTypeSQL    RegistryType = "sql"
)

type SQLDriver string

const (
	SQLDriverSqlite   SQLDriver = "sqlite"
	SQLDriverPostgres SQLDriver = "postgres"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// LabelForChainId returns a human readable label for a typed data domain chain id.
func LabelForChainId(chainId uint64) string {
	if name, ok := ChainIdToName[ChainId(chainId)]; ok {
		return fmt.Sprintf("%d (%s)", chainId, name)
	}
	return fmt.Sprintf("%d (unknown chain)", chainId)
}

// GetSupportedChainIDsString returns the known chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (%s), %d (%s), %d (%s)",
		ChainId_EthereumMainnet, ChainName_EthereumMainnet,
		ChainId_EthereumSepolia, ChainName_EthereumSepolia,
		ChainId_EthereumAnvil, ChainName_EthereumAnvil)
}

// ParseChainId accepts a known chain name or any unsigned decimal chain id.
func ParseChainId(s string) (ChainId, error) {
	s = strings.TrimSpace(s)
	if id, ok := ChainNameToId[ChainName(strings.ToLower(s))]; ok {
		return id, nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("unknown chain %q, expected a chain id or one of %s", s, GetSupportedChainIDsString())
	}
	return ChainId(id), nil
}

// RemoteSignerConfig describes a Web3Signer endpoint. CACert, Cert and Key hold PEM contents.
type RemoteSignerConfig struct {
	Url         string `json:"url" yaml:"url"`
	CACert      string `json:"caCert" yaml:"caCert"`
	Cert        string `json:"cert" yaml:"cert"`
	Key         string `json:"key" yaml:"key"`
	FromAddress string `json:"fromAddress" yaml:"fromAddress"`
	PublicKey   string `json:"publicKey" yaml:"publicKey"`
}

func (rsc *RemoteSignerConfig) Validate() error {
	return rsc.validate(field.NewPath("remote")).ToAggregate()
}

func (rsc *RemoteSignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if rsc.Url == "" {
		allErrors = append(allErrors, field.Required(path.Child("url"), "url is required"))
	}
	if rsc.FromAddress != "" && !common.IsHexAddress(rsc.FromAddress) {
		allErrors = append(allErrors, field.Invalid(path.Child("fromAddress"), rsc.FromAddress, "must be a hex address"))
	}
	if (rsc.Cert == "") != (rsc.Key == "") {
		allErrors = append(allErrors, field.Invalid(path.Child("cert"), "<redacted>", "cert and key must be provided together"))
	}
	return allErrors
}

type LocalSignerConfig struct {
	PrivateKey string `json:"privateKey" yaml:"privateKey"`
}

func (lsc *LocalSignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	key := strings.TrimPrefix(lsc.PrivateKey, "0x")
	if key == "" {
		allErrors = append(allErrors, field.Required(path.Child("privateKey"), "privateKey is required"))
	} else if len(key) != 64 {
		allErrors = append(allErrors, field.Invalid(path.Child("privateKey"), "<redacted>",
			fmt.Sprintf("private key must be 32 bytes (64 hex chars), got %d chars", len(key))))
	}
	return allErrors
}

type AWSKMSSignerConfig struct {
	Region  string `json:"region" yaml:"region"`
	Profile string `json:"profile" yaml:"profile"`
	KeyId   string `json:"keyId" yaml:"keyId"`
}

func (kc *AWSKMSSignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if kc.KeyId == "" {
		allErrors = append(allErrors, field.Required(path.Child("keyId"), "keyId is required"))
	}
	if kc.Region == "" {
		allErrors = append(allErrors, field.Required(path.Child("region"), "region is required"))
	}
	return allErrors
}

type SignerConfig struct {
	Type   SignerType          `json:"type" yaml:"type"`
	Local  *LocalSignerConfig  `json:"local,omitempty" yaml:"local,omitempty"`
	AWSKMS *AWSKMSSignerConfig `json:"awsKms,omitempty" yaml:"awsKms,omitempty"`
	Remote *RemoteSignerConfig `json:"remote,omitempty" yaml:"remote,omitempty"`
}

func (sc *SignerConfig) Validate() error {
	return sc.validate(field.NewPath("signer")).ToAggregate()
}

func (sc *SignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch sc.Type {
	case SignerTypeNone:
	case SignerTypeLocal:
		if sc.Local == nil {
			allErrors = append(allErrors, field.Required(path.Child("local"), "local signer config is required"))
		} else {
			allErrors = append(allErrors, sc.Local.validate(path.Child("local"))...)
		}
	case SignerTypeAWSKMS:
		if sc.AWSKMS == nil {
			allErrors = append(allErrors, field.Required(path.Child("awsKms"), "aws kms signer config is required"))
		} else {
			allErrors = append(allErrors, sc.AWSKMS.validate(path.Child("awsKms"))...)
		}
	case SignerTypeWeb3Signer:
		if sc.Remote == nil {
			allErrors = append(allErrors, field.Required(path.Child("remote"), "remote signer config is required"))
		} else {
			allErrors = append(allErrors, sc.Remote.validate(path.Child("remote"))...)
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), sc.Type,
			[]string{SignerTypeLocal.String(), SignerTypeAWSKMS.String(), SignerTypeWeb3Signer.String()}))
	}
	return allErrors
}

type RegistryConfig struct {
	Type          RegistryType `json:"type" yaml:"type"`
	BadgerPath    string       `json:"badgerPath" yaml:"badgerPath"`
	RedisAddress  string       `json:"redisAddress" yaml:"redisAddress"`
	RedisPassword string       `json:"redisPassword" yaml:"redisPassword"`
	RedisDB       int          `json:"redisDb" yaml:"redisDb"`
	RedisPrefix   string       `json:"redisPrefix" yaml:"redisPrefix"`
	SQLDriver     SQLDriver    `json:"sqlDriver" yaml:"sqlDriver"`
	SQLDSN        string       `json:"sqlDsn" yaml:"sqlDsn"`
}

func (rc *RegistryConfig) Validate() error {
	return rc.validate(field.NewPath("registry")).ToAggregate()
}

func (rc *RegistryConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch rc.Type {
	case RegistryTypeMemory:
	case RegistryTypeBadger:
		if rc.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("badgerPath"), "badgerPath is required"))
		}
	case RegistryTypeRedis:
		if rc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redisAddress is required"))
		}
		if rc.RedisDB < 0 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDb"), rc.RedisDB, "must not be negative"))
		}
	case RegistryTypeSQL:
		if rc.SQLDriver != SQLDriverSqlite && rc.SQLDriver != SQLDriverPostgres {
			allErrors = append(allErrors, field.NotSupported(path.Child("sqlDriver"), rc.SQLDriver,
				[]string{string(SQLDriverSqlite), string(SQLDriverPostgres)}))
		}
		if rc.SQLDSN == "" {
			allErrors = append(allErrors, field.Required(path.Child("sqlDsn"), "sqlDsn is required"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), rc.Type,
			[]string{RegistryTypeMemory.String(), RegistryTypeBadger.String(), RegistryTypeRedis.String(), RegistryTypeSQL.String()}))
	}
	return allErrors
}

type ServerConfig struct {
	Port        int           `json:"port" yaml:"port"`
	RateLimit   float64       `json:"rateLimit" yaml:"rateLimit"`
	RateBurst   int           `json:"rateBurst" yaml:"rateBurst"`
	ReadTimeout time.Duration `json:"readTimeout" yaml:"readTimeout"`
}

func (sc *ServerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if sc.Port < 1 || sc.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(path.Child("port"), sc.Port, "port must be between 1-65535"))
	}
	if sc.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(path.Child("rateLimit"), sc.RateLimit, "must not be negative"))
	}
	if sc.RateLimit > 0 && sc.RateBurst < 1 {
		allErrors = append(allErrors, field.Invalid(path.Child("rateBurst"), sc.RateBurst, "must be at least 1 when rate limiting"))
	}
	if sc.ReadTimeout < 0 {
		allErrors = append(allErrors, field.Invalid(path.Child("readTimeout"), sc.ReadTimeout.String(), "must not be negative"))
	}
	return allErrors
}

// SigkitConfig is the complete configuration for the sigkit CLI and server
type SigkitConfig struct {
	Debug    bool           `json:"debug" yaml:"debug"`
	ChainID  ChainId        `json:"chainId" yaml:"chainId"`
	Signer   SignerConfig   `json:"signer" yaml:"signer"`
	Registry RegistryConfig `json:"registry" yaml:"registry"`
	Server   ServerConfig   `json:"server" yaml:"server"`
}

func NewDefaultSigkitConfig() *SigkitConfig {
	return &SigkitConfig{
		ChainID:  ChainId_EthereumMainnet,
		Registry: RegistryConfig{Type: RegistryTypeMemory, RedisPrefix: "sigkit:"},
		Server: ServerConfig{
			Port:        8000,
			RateLimit:   50,
			RateBurst:   100,
			ReadTimeout: 10 * time.Second,
		},
	}
}

// LoadConfigFromFile reads a YAML config on top of the defaults.
func LoadConfigFromFile(path string) (*SigkitConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*SigkitConfig, error) {
	cfg := NewDefaultSigkitConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvironment overrides config values with any SIGKIT_* or PRIVATE_KEY variables that are set.
func (c *SigkitConfig) ApplyEnvironment() error {
	var allErrors field.ErrorList

	if v, ok := os.LookupEnv(EnvSigkitDebug); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvSigkitDebug), v, "must be a boolean"))
		}
		c.Debug = b
	}
	if v, ok := os.LookupEnv(EnvSigkitChainID); ok {
		id, err := ParseChainId(v)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvSigkitChainID), v, "must be a chain id or a known chain name"))
		}
		c.ChainID = id
	}

	if v, ok := os.LookupEnv(EnvSigkitSigner); ok {
		c.Signer.Type = SignerType(v)
	}
	if v, ok := os.LookupEnv(EnvPrivateKey); ok {
		if c.Signer.Local == nil {
			c.Signer.Local = &LocalSignerConfig{}
		}
		c.Signer.Local.PrivateKey = v
	}
	setString := func(dst *string, name string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	if anySet(EnvSigkitAWSRegion, EnvSigkitAWSProfile, EnvSigkitKMSKeyID) {
		if c.Signer.AWSKMS == nil {
			c.Signer.AWSKMS = &AWSKMSSignerConfig{}
		}
		setString(&c.Signer.AWSKMS.Region, EnvSigkitAWSRegion)
		setString(&c.Signer.AWSKMS.Profile, EnvSigkitAWSProfile)
		setString(&c.Signer.AWSKMS.KeyId, EnvSigkitKMSKeyID)
	}
	if anySet(EnvSigkitW3SURL, EnvSigkitW3SAddress) {
		if c.Signer.Remote == nil {
			c.Signer.Remote = &RemoteSignerConfig{}
		}
		setString(&c.Signer.Remote.Url, EnvSigkitW3SURL)
		setString(&c.Signer.Remote.FromAddress, EnvSigkitW3SAddress)
	}

	if v, ok := os.LookupEnv(EnvSigkitRegistry); ok {
		c.Registry.Type = RegistryType(v)
	}
	setString(&c.Registry.BadgerPath, EnvSigkitBadgerPath)
	setString(&c.Registry.RedisAddress, EnvSigkitRedisAddr)
	setString(&c.Registry.RedisPassword, EnvSigkitRedisPass)
	if v, ok := os.LookupEnv(EnvSigkitSQLDriver); ok {
		c.Registry.SQLDriver = SQLDriver(v)
	}
	setString(&c.Registry.SQLDSN, EnvSigkitSQLDSN)

	if v, ok := os.LookupEnv(EnvSigkitPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvSigkitPort), v, "must be an integer"))
		}
		c.Server.Port = port
	}
	if v, ok := os.LookupEnv(EnvSigkitRateLimit); ok {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvSigkitRateLimit), v, "must be a number"))
		}
		c.Server.RateLimit = limit
	}
	if v, ok := os.LookupEnv(EnvSigkitRateBurst); ok {
		burst, err := strconv.Atoi(v)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvSigkitRateBurst), v, "must be an integer"))
		}
		c.Server.RateBurst = burst
	}
	if v, ok := os.LookupEnv(EnvSigkitReadTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(EnvSigkitReadTimeout), v, "must be a duration"))
		}
		c.Server.ReadTimeout = d
	}

	return allErrors.ToAggregate()
}

func anySet(names ...string) bool {
	for _, name := range names {
		if _, ok := os.LookupEnv(name); ok {
			return true
		}
	}
	return false
}

// Validate validates the sigkit configuration
func (c *SigkitConfig) Validate() error {
	var allErrors field.ErrorList
	allErrors = append(allErrors, c.Signer.validate(field.NewPath("signer"))...)
	allErrors = append(allErrors, c.Registry.validate(field.NewPath("registry"))...)
	allErrors = append(allErrors, c.Server.validate(field.NewPath("server"))...)
	return allErrors.ToAggregate()
}
