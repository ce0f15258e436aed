// Package tlsutil 开发环境 TLS 证书
//
// server.tls.auto_generate 开启且证书文件不存在时，生成自签名 CA 和
// 由它签发的服务端证书；客户端（pkg/client、portalctl）可以加载该 CA 信任服务端。
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CertFiles 证书文件路径
type CertFiles struct {
	CAFile   string // CA 证书
	CertFile string // 服务端证书
	KeyFile  string // 服务端私钥
}

// DefaultCertDir 默认证书目录（相对工作目录）
const DefaultCertDir = "certs"

const (
	defaultOrganization = "Payments Portal"
	defaultValidFor     = 365 * 24 * time.Hour
	caValidFor          = 10 * 365 * 24 * time.Hour

	// 剩余有效期不足该值时重新签发
	renewBefore = 7 * 24 * time.Hour
)

// FilesIn 返回目录下的证书文件路径
func FilesIn(dir string) CertFiles {
	if dir == "" {
		dir = DefaultCertDir
	}
	return CertFiles{
		CAFile:   filepath.Join(dir, "ca.pem"),
		CertFile: filepath.Join(dir, "server.pem"),
		KeyFile:  filepath.Join(dir, "server-key.pem"),
	}
}

// Exist 三个文件是否都存在
func (c CertFiles) Exist() bool {
	for _, f := range []string{c.CAFile, c.CertFile, c.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

// GenerateOptions 证书生成选项
type GenerateOptions struct {
	Hosts        string        // 额外的 SANs（逗号分隔），始终包含 localhost / 127.0.0.1 / ::1
	Organization string        // 证书组织名
	ValidFor     time.Duration // 服务端证书有效期
	CertDir      string        // 输出目录
	Force        bool          // 覆盖已有证书
}

func (o *GenerateOptions) applyDefaults() {
	if o.CertDir == "" {
		o.CertDir = DefaultCertDir
	}
	if o.Organization == "" {
		o.Organization = defaultOrganization
	}
	if o.ValidFor <= 0 {
		o.ValidFor = defaultValidFor
	}
}

// EnsureCerts 证书不存在或即将过期时生成，返回文件路径
func EnsureCerts(opts GenerateOptions) (*CertFiles, error) {
	opts.applyDefaults()
	files := FilesIn(opts.CertDir)

	if !opts.Force && files.Exist() {
		notAfter, err := certExpiry(files.CertFile)
		if err == nil && time.Until(notAfter) > renewBefore {
			log.Printf("[tls] Using existing certificates in %s (expires %s)", opts.CertDir, notAfter.Format(time.DateOnly))
			return &files, nil
		}
		log.Printf("[tls] Existing certificate unusable or expiring, regenerating: %v", err)
	}

	log.Printf("[tls] Generating development certificates in %s", opts.CertDir)
	if err := GenerateCerts(opts); err != nil {
		return nil, err
	}
	return &files, nil
}

// GenerateCerts 生成 CA 与服务端证书
func GenerateCerts(opts GenerateOptions) error {
	opts.applyDefaults()
	if err := os.MkdirAll(opts.CertDir, 0o755); err != nil {
		return fmt.Errorf("create cert dir: %w", err)
	}

	ca, caKey, caDER, err := newCA(opts.Organization)
	if err != nil {
		return err
	}

	hosts := collectHosts(opts.Hosts)
	serverDER, serverKey, err := issueServerCert(ca, caKey, opts.Organization, hosts, opts.ValidFor)
	if err != nil {
		return err
	}

	files := FilesIn(opts.CertDir)
	if err := writePEM(files.CAFile, "CERTIFICATE", caDER, 0o644); err != nil {
		return fmt.Errorf("write CA cert: %w", err)
	}
	if err := writePEM(files.CertFile, "CERTIFICATE", serverDER, 0o644); err != nil {
		return fmt.Errorf("write server cert: %w", err)
	}
	keyBytes, err := x509.MarshalECPrivateKey(serverKey)
	if err != nil {
		return fmt.Errorf("marshal server key: %w", err)
	}
	if err := writePEM(files.KeyFile, "EC PRIVATE KEY", keyBytes, 0o600); err != nil {
		return fmt.Errorf("write server key: %w", err)
	}

	log.Printf("[tls] CA cert:     %s", files.CAFile)
	log.Printf("[tls] Server cert: %s (SANs: %s, valid %s)", files.CertFile, strings.Join(hosts, ", "), opts.ValidFor)
	return nil
}

func newCA(org string) (*x509.Certificate, *ecdsa.PrivateKey, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generate CA key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, nil, nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{org}, CommonName: org + " Development CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(caValidFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create CA cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse CA cert: %w", err)
	}
	return cert, key, der, nil
}

func issueServerCert(ca *x509.Certificate, caKey *ecdsa.PrivateKey, org string, hosts []string, validFor time.Duration) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate server key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{org}, CommonName: org + " API"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create server cert: %w", err)
	}
	return der, key, nil
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	return serial, nil
}

// collectHosts 去重并补齐回环地址和本机名
func collectHosts(extra string) []string {
	seen := make(map[string]bool)
	var result []string
	add := func(h string) {
		h = strings.TrimSpace(h)
		if h != "" && !seen[h] {
			seen[h] = true
			result = append(result, h)
		}
	}

	for _, h := range []string{"localhost", "127.0.0.1", "::1"} {
		add(h)
	}
	for _, h := range strings.Split(extra, ",") {
		add(h)
	}
	if hostname, err := os.Hostname(); err == nil {
		add(hostname)
	}
	return result
}

func writePEM(path, blockType string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: data})
}

func certExpiry(certFile string) (time.Time, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return time.Time{}, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return time.Time{}, errors.New("no PEM block in " + certFile)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Time{}, err
	}
	return cert.NotAfter, nil
}

// ============================================================================
// tls.Config
// ============================================================================

// ServerConfig 加载证书并返回服务端 TLS 配置（最低 TLS 1.2）
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// CAPool 读取 PEM 格式 CA 证书，返回包含系统根证书和该 CA 的证书池
func CAPool(caFile string) (*x509.CertPool, error) {
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	return pool, nil
}
