package affix

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7/pkg/s3utils"
	"github.com/minio/minio-go/v7/pkg/signer"
)

const (
	SignatureAlgorithm = "AWS4-HMAC-SHA256"
	MaxExpiresSeconds  = 604800 // 7 days
	DateTimeFormat     = "20060102T150405Z"
	DateFormat         = "20060102"

	unsignedPayload = "UNSIGNED-PAYLOAD"
)

// Credentials identify the signer of a presigned URL.
type Credentials struct {
	AccessKey string
	SecretKey string
	Region    string
	Service   string
}

// PresignURL signs rawURL for method with AWS Signature V4 query
// parameters, valid for ttl from now. Only the host header is signed, and
// the credential scope always names the s3 service.
func PresignURL(creds Credentials, method, rawURL string, ttl time.Duration) (string, error) {
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return "", fmt.Errorf("presign: %w: credentials are required", ErrInvalidInput)
	}
	if creds.Service != "" && creds.Service != signer.ServiceTypeS3 {
		return "", fmt.Errorf("presign: %w: service %q is not supported, use %s", ErrInvalidInput, creds.Service, signer.ServiceTypeS3)
	}

	expires := int64(ttl / time.Second)
	if expires <= 0 || expires > MaxExpiresSeconds {
		return "", fmt.Errorf("presign: %w: ttl must be between 1s and %ds", ErrInvalidInput, MaxExpiresSeconds)
	}

	req, err := http.NewRequest(method, rawURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("presign: %w: %w", ErrInvalidInput, err)
	}
	if req.URL.Host == "" {
		return "", fmt.Errorf("presign: %w: url %q has no host", ErrInvalidInput, rawURL)
	}

	signed := signer.PreSignV4(*req, creds.AccessKey, creds.SecretKey, "", creds.Region, expires)
	return signed.URL.String(), nil
}

// SignatureVerifier verifies AWS Signature V4 presigned URLs.
type SignatureVerifier struct {
	Region          string
	Service         string
	AccessKeyLookup func(accessKey string) (secretKey string, found bool)
	now             func() time.Time
}

// NewSignatureVerifier creates a verifier for region and service. lookup
// returns the secret key for an access key.
func NewSignatureVerifier(region, service string, lookup func(string) (string, bool)) *SignatureVerifier {
	return &SignatureVerifier{
		Region:          region,
		Service:         service,
		AccessKeyLookup: lookup,
		now:             time.Now,
	}
}

// Verify checks the presigned query parameters of a request: required
// parameters, algorithm, expiry, credential scope, access key, and finally
// the HMAC-SHA256 signature. All failures wrap ErrUnauthorized.
//
//	verifier := affix.NewSignatureVerifier("us-east-1", "s3", lookupFunc)
//	err := verifier.Verify("GET", "/files/avatars/1/original/a.png", r.URL.Query(), r.Header)
func (v *SignatureVerifier) Verify(method, path string, query url.Values, headers http.Header) error {
	params, err := parseSignatureParams(query)
	if err != nil {
		return err
	}

	if err := v.checkScope(params); err != nil {
		return err
	}

	secretKey, found := v.AccessKeyLookup(params.accessKey)
	if !found {
		return fmt.Errorf("invalid access key: %w", ErrUnauthorized)
	}

	expected := sign(secretKey, method, path, query, headers,
		params.requestTime, params.dateStamp, params.region, params.service, params.signedHeaders)

	if !hmac.Equal([]byte(expected), []byte(params.signature)) {
		return fmt.Errorf("signature mismatch: %w", ErrUnauthorized)
	}

	return nil
}

type signatureParams struct {
	algorithm     string
	accessKey     string
	dateStamp     string
	region        string
	service       string
	requestTime   time.Time
	expires       int
	signedHeaders string
	signature     string
}

func parseSignatureParams(query url.Values) (*signatureParams, error) {
	p := &signatureParams{
		algorithm:     query.Get("X-Amz-Algorithm"),
		signedHeaders: query.Get("X-Amz-SignedHeaders"),
		signature:     query.Get("X-Amz-Signature"),
	}
	credential := query.Get("X-Amz-Credential")
	date := query.Get("X-Amz-Date")
	expires := query.Get("X-Amz-Expires")

	if p.algorithm == "" || credential == "" || date == "" ||
		expires == "" || p.signedHeaders == "" || p.signature == "" {
		return nil, fmt.Errorf("missing required signature parameters: %w", ErrUnauthorized)
	}

	var err error
	p.requestTime, err = time.Parse(DateTimeFormat, date)
	if err != nil {
		return nil, fmt.Errorf("invalid X-Amz-Date format: %w", ErrUnauthorized)
	}

	p.expires, err = strconv.Atoi(expires)
	if err != nil || p.expires <= 0 || p.expires > MaxExpiresSeconds {
		return nil, fmt.Errorf("invalid X-Amz-Expires: must be between 1 and %d: %w", MaxExpiresSeconds, ErrUnauthorized)
	}

	parts := strings.Split(credential, "/")
	if len(parts) != 5 || parts[4] != "aws4_request" {
		return nil, fmt.Errorf("invalid X-Amz-Credential format: %w", ErrUnauthorized)
	}
	p.accessKey, p.dateStamp, p.region, p.service = parts[0], parts[1], parts[2], parts[3]

	return p, nil
}

func (v *SignatureVerifier) checkScope(p *signatureParams) error {
	if p.algorithm != SignatureAlgorithm {
		return fmt.Errorf("invalid algorithm: expected %s, got %s: %w", SignatureAlgorithm, p.algorithm, ErrUnauthorized)
	}

	now := time.Now
	if v.now != nil {
		now = v.now
	}
	if now().After(p.requestTime.Add(time.Duration(p.expires) * time.Second)) {
		return fmt.Errorf("signature expired: %w", ErrUnauthorized)
	}

	if p.dateStamp != p.requestTime.Format(DateFormat) {
		return fmt.Errorf("credential date mismatch: %w", ErrUnauthorized)
	}

	if p.region != v.Region {
		return fmt.Errorf("region mismatch: expected %s, got %s: %w", v.Region, p.region, ErrUnauthorized)
	}

	if p.service != v.Service {
		return fmt.Errorf("service mismatch: expected %s, got %s: %w", v.Service, p.service, ErrUnauthorized)
	}

	return nil
}

func credentialScope(dateStamp, region, service string) string {
	return dateStamp + "/" + region + "/" + service + "/aws4_request"
}

func sign(
	secretKey, method, path string,
	query url.Values,
	headers http.Header,
	requestTime time.Time,
	dateStamp, region, service, signedHeaders string,
) string {
	canonicalRequest := strings.Join([]string{
		method,
		s3utils.EncodePath(path),
		canonicalQuery(query),
		canonicalHeaders(headers, signedHeaders),
		signedHeaders,
		unsignedPayload,
	}, "\n")

	stringToSign := strings.Join([]string{
		SignatureAlgorithm,
		requestTime.Format(DateTimeFormat),
		credentialScope(dateStamp, region, service),
		sha256Hex(canonicalRequest),
	}, "\n")

	key := hmacSHA256([]byte("AWS4"+secretKey), []byte(dateStamp))
	key = hmacSHA256(key, []byte(region))
	key = hmacSHA256(key, []byte(service))
	key = hmacSHA256(key, []byte("aws4_request"))

	return hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))
}

// canonicalHeaders renders the signed headers sorted, one "name:value" per line.
func canonicalHeaders(headers http.Header, signedHeaders string) string {
	names := strings.Split(signedHeaders, ";")
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(strings.TrimSpace(headers.Get(name)))
		b.WriteString("\n")
	}
	return b.String()
}

func canonicalQuery(query url.Values) string {
	params := url.Values{}
	for k, v := range query {
		if k != "X-Amz-Signature" {
			params[k] = v
		}
	}
	return strings.ReplaceAll(params.Encode(), "+", "%20")
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
