package web3signer

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/eigenx-sigkit/pkg/config"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:9000"
	DefaultTimeout = 30 * time.Second

	// MaxResponseBytes bounds a JSON-RPC response body.
	MaxResponseBytes = 1 << 20
)

// Config holds connection settings for a Web3Signer instance. CACert, Cert and Key are
// PEM contents; when Cert and Key are set the client authenticates with mutual TLS.
type Config struct {
	BaseURL string
	Timeout time.Duration
	CACert  string
	Cert    string
	Key     string
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

func NewConfigWithTLS(baseURL, caCert, cert, key string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.CACert = caCert
	cfg.Cert = cert
	cfg.Key = key
	return cfg
}

// JsonRpcRequest is a JSON-RPC 2.0 request.
type JsonRpcRequest struct {
	JsonRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

// JsonRpcResponse is a JSON-RPC 2.0 response.
type JsonRpcResponse struct {
	JsonRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JsonRpcError   `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// JsonRpcError is the error object of a JSON-RPC response. It is returned unchanged
// so callers can inspect the provider's rejection.
type JsonRpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("web3signer error %d: %s", e.Code, e.Message)
}

// Client is a Web3Signer JSON-RPC client.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
	nextID     atomic.Int64
}

func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.CACert != "" || cfg.Cert != "" {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// NewWeb3SignerClientFromRemoteSignerConfig builds a client from the remote signer
// section of the application config. A nil config uses the defaults.
func NewWeb3SignerClientFromRemoteSignerConfig(rsc *config.RemoteSignerConfig, logger *zap.Logger) (*Client, error) {
	if rsc == nil {
		return NewClient(DefaultConfig(), logger)
	}
	cfg := NewConfigWithTLS(rsc.Url, rsc.CACert, rsc.Cert, rsc.Key)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return NewClient(cfg, logger)
}

func buildTLSConfig(cfg *Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CACert != "" {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(cfg.CACert)) {
			return nil, fmt.Errorf("failed to parse web3signer CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.Cert != "" || cfg.Key != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.Cert), []byte(cfg.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to load web3signer client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) EthAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.call(ctx, "eth_accounts", []interface{}{}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) EthSign(ctx context.Context, account string, data string) (string, error) {
	var sig string
	if err := c.call(ctx, "eth_sign", []interface{}{account, data}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

func (c *Client) EthSignTypedData(ctx context.Context, account string, typedData interface{}) (string, error) {
	var sig string
	if err := c.call(ctx, "eth_signTypedData", []interface{}{account, typedData}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

func (c *Client) ListPublicKeys(ctx context.Context) ([]string, error) {
	return c.EthAccounts(ctx)
}

func (c *Client) Upcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/upcheck"), nil)
	if err != nil {
		return fmt.Errorf("failed to create upcheck request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("web3signer upcheck failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("web3signer upcheck returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	request := JsonRpcRequest{
		JsonRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(""), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Sugar().Debugw("Sending Web3Signer request",
		zap.String("method", method),
		zap.Int64("id", request.ID),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}
	if len(respBody) > MaxResponseBytes {
		return fmt.Errorf("%s response exceeds %d bytes", method, MaxResponseBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var rpcResp JsonRpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + path
}
