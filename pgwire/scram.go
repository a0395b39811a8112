package pgwire

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// scramClient drives the client side of a SCRAM-SHA-256 exchange:
//
//	AuthenticationSASL          -> first() as SASLInitialResponse
//	AuthenticationSASLContinue  -> final(challenge) as SASLResponse
//	AuthenticationSASLFinal     -> verify(signature)
type scramClient struct {
	user     string
	password string

	gs2Header       string
	clientNonce     string
	clientFirstBare string
	saltedPassword  []byte
	authMessage     string
}

func newScramClient(user, password string) (*scramClient, error) {
	nonceBytes := make([]byte, 18)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	c := &scramClient{
		user:        user,
		password:    password,
		gs2Header:   "n,,",
		clientNonce: base64.StdEncoding.EncodeToString(nonceBytes),
	}
	c.clientFirstBare = fmt.Sprintf("n=%s,r=%s", saslEscapeUsername(user), c.clientNonce)
	return c, nil
}

// supportsMechanism checks the server's advertised mechanism list.
func supportsMechanism(mechanisms []string, want string) bool {
	for _, m := range mechanisms {
		if m == want {
			return true
		}
	}
	return false
}

// first returns the client-first-message.
func (c *scramClient) first() []byte {
	return []byte(c.gs2Header + c.clientFirstBare)
}

// final consumes the server-first-message and returns the
// client-final-message with the proof.
func (c *scramClient) final(serverFirst []byte) ([]byte, error) {
	serverNonce, salt, iterations, err := parseServerFirst(string(serverFirst))
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(serverNonce, c.clientNonce) {
		return nil, fmt.Errorf("server nonce does not extend client nonce")
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, 32, sha256.New)

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := "c=" + base64.StdEncoding.EncodeToString([]byte(c.gs2Header))
	clientFinalWithoutProof := fmt.Sprintf("%s,r=%s", channelBinding, serverNonce)

	c.authMessage = c.clientFirstBare + "," + string(serverFirst) + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	return []byte(clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)), nil
}

// verify checks the server signature from the server-final-message.
func (c *scramClient) verify(serverFinal []byte) error {
	msg := string(serverFinal)
	if strings.HasPrefix(msg, "e=") {
		return fmt.Errorf("authentication failed: %s", msg[2:])
	}
	if !strings.HasPrefix(msg, "v=") {
		return fmt.Errorf("malformed server-final-message")
	}

	got, err := base64.StdEncoding.DecodeString(msg[2:])
	if err != nil {
		return fmt.Errorf("decoding server signature: %w", err)
	}

	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	want := hmacSHA256(serverKey, []byte(c.authMessage))
	if !hmac.Equal(got, want) {
		return fmt.Errorf("server signature mismatch")
	}
	return nil
}

// parseServerFirst parses "r=<nonce>,s=<salt>,i=<iterations>".
func parseServerFirst(msg string) (nonce string, salt []byte, iterations int, err error) {
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 || part[1] != '=' {
			continue
		}
		switch part[0] {
		case 'r':
			nonce = part[2:]
		case 's':
			salt, err = base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("decoding salt: %w", err)
			}
		case 'i':
			iterations, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("parsing iteration count: %w", err)
			}
		}
	}
	if nonce == "" || salt == nil || iterations == 0 {
		return "", nil, 0, fmt.Errorf("incomplete server-first-message %q", msg)
	}
	return nonce, salt, iterations, nil
}

// saslEscapeUsername escapes '=' and ',' per the SASLprep rules.
func saslEscapeUsername(user string) string {
	user = strings.ReplaceAll(user, "=", "=3D")
	return strings.ReplaceAll(user, ",", "=2C")
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
