package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

// newSigningClient builds a client with only the pieces URL signing needs.
func newSigningClient(t *testing.T) (*Client, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "generate rsa key")

	return &Client{
		defaultBucket: "bucket",
		serviceAccount: &serviceAccountInfo{
			clientEmail: "signer@example.com",
			privateKey:  key,
		},
	}, key
}

// newTransportClient builds a client whose HTTP calls hit the stub and whose
// token source never touches the network.
func newTransportClient(rt roundTripFunc) *Client {
	return &Client{
		httpClient:    &http.Client{Transport: rt},
		defaultBucket: "bucket",
		tokenSource: &tokenSource{
			fetch: func(context.Context) (string, time.Time, error) {
				return "token", time.Now().Add(time.Hour), nil
			},
		},
	}
}

func TestSignedURL(t *testing.T) {
	t.Parallel()

	client, key := newSigningClient(t)

	object := "media/image/file.png"
	contentType := "image/png"
	signed, err := client.SignedURL("bucket", object, contentType, 5*time.Minute)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "storage.googleapis.com", parsed.Host)

	values := parsed.Query()
	assert.Equal(t, "signer@example.com", values.Get("GoogleAccessId"))

	expireParam := values.Get("Expires")
	require.NotEmpty(t, expireParam)
	_, err = strconv.ParseInt(expireParam, 10, 64)
	require.NoError(t, err, "Expires must be a unix timestamp")

	rawSig, err := base64.StdEncoding.DecodeString(values.Get("Signature"))
	require.NoError(t, err)

	// The signature must cover method, content type, expiry, and path.
	payload := []byte("PUT\n\n" + contentType + "\n" + expireParam + "\n/bucket/" + object)
	digest := sha256.Sum256(payload)
	require.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], rawSig))
}

func TestSignedReadURL(t *testing.T) {
	t.Parallel()

	client, _ := newSigningClient(t)

	signed, err := client.SignedReadURL("bucket", "media/image/file.png", 5*time.Minute)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.NotEmpty(t, parsed.Query().Get("Signature"))
}

func TestSignedURLValidation(t *testing.T) {
	t.Parallel()

	client, _ := newSigningClient(t)
	client.defaultBucket = ""

	cases := []struct {
		name    string
		bucket  string
		object  string
		expires time.Duration
	}{
		{name: "missing bucket", object: "o", expires: time.Minute},
		{name: "missing object", bucket: "b", expires: time.Minute},
		{name: "invalid expiry", bucket: "b", object: "o"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.SignedURL(tc.bucket, tc.object, "image/png", tc.expires)
			assert.Error(t, err)
		})
	}

	t.Run("no service account", func(t *testing.T) {
		_, err := (&Client{}).SignedURL("b", "object", "image/png", time.Minute)
		assert.Error(t, err)
	})
}

func TestDeleteObject(t *testing.T) {
	t.Parallel()

	t.Run("escapes the object path", func(t *testing.T) {
		var method, path string
		client := newTransportClient(func(req *http.Request) (*http.Response, error) {
			method = req.Method
			path = req.URL.Path
			return respond(http.StatusNoContent, ""), nil
		})

		require.NoError(t, client.DeleteObject(context.Background(), "bucket", "media/file.png"))
		assert.Equal(t, http.MethodDelete, method)
		assert.Contains(t, path, "media%2Ffile.png")
	})

	t.Run("missing object is not an error", func(t *testing.T) {
		client := newTransportClient(func(*http.Request) (*http.Response, error) {
			return respond(http.StatusNotFound, ""), nil
		})
		assert.NoError(t, client.DeleteObject(context.Background(), "", "media/missing.png"))
	})
}

func TestUploadObject(t *testing.T) {
	t.Parallel()

	var captured []byte
	client := newTransportClient(func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		captured = body
		return respond(http.StatusOK, `{"name":"media/file.png"}`), nil
	})

	payload := []byte("fake-image-bytes")
	require.NoError(t, client.UploadObject(context.Background(), "", "media/file.png", "image/png", payload))
	assert.Equal(t, payload, captured)
}
