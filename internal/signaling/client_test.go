package signaling

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/bdwind-viewer/internal/config"
)

const testAnswerSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 H264/90000\r\n"

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.DefaultSignalingConfig()
	cfg.BaseURL = server.URL
	cfg.RequestTimeout = 2 * time.Second

	client, err := NewClient(cfg, server.Client())
	require.NoError(t, err)
	return client
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.Error(t, err)

	cfg := config.DefaultSignalingConfig()
	cfg.BaseURL = "ftp://example.com"
	_, err = NewClient(cfg, nil)
	assert.Error(t, err)
}

func TestFetchICEServers(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ice-servers", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"iceServers":[
			{"urls":"stun:stun.example.com:3478"},
			{"urls":["turn:turn.example.com:3478","turns:turn.example.com:5349"],"username":"u","credential":"p"}
		]}`)
	}))

	servers, err := client.FetchICEServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Equal(t, []string{"turn:turn.example.com:3478", "turns:turn.example.com:5349"}, servers[1].URLs)
	assert.Equal(t, "u", servers[1].Username)

	converted := ToWebRTC(servers)
	require.Len(t, converted, 2)
	assert.Empty(t, converted[0].Username)
	assert.Equal(t, "p", converted[1].Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, converted[1].CredentialType)
}

func TestFetchICEServers_Errors(t *testing.T) {
	t.Run("non-2xx is transport", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		_, err := client.FetchICEServers(context.Background())
		require.Error(t, err)
		assert.Equal(t, KindTransport, KindOf(err))
		assert.ErrorIs(t, err, ErrUnexpectedStatus)

		var se *Error
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	})

	t.Run("bad json is protocol", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"iceServers":[{"urls":42}]}`)
		}))
		_, err := client.FetchICEServers(context.Background())
		require.Error(t, err)
		assert.Equal(t, KindProtocol, KindOf(err))
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestFetchCodecs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stream/codec/cam 1", r.URL.Path)
		fmt.Fprint(w, `[{"Type":"video"},{"Type":"audio"}]`)
	}))

	codecs, err := client.FetchCodecs(context.Background(), "cam 1")
	require.NoError(t, err)
	require.Len(t, codecs, 2)

	kind, err := codecs[0].Kind()
	require.NoError(t, err)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, kind)
	kind, err = codecs[1].Kind()
	require.NoError(t, err)
	assert.Equal(t, webrtc.RTPCodecTypeAudio, kind)
}

func TestFetchCodecs_UnknownType(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"Type":"data"}]`)
	}))

	_, err := client.FetchCodecs(context.Background(), "demo")
	require.Error(t, err)
	assert.Equal(t, KindProtocol, KindOf(err))
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestExchangeOffer(t *testing.T) {
	offer := "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=+plus/slash=\r\n"

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/stream/receiver/demo", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "demo", r.PostForm.Get("suuid"))

		decoded, err := base64.StdEncoding.DecodeString(r.PostForm.Get("data"))
		require.NoError(t, err)
		assert.Equal(t, offer, string(decoded))

		fmt.Fprint(w, base64.StdEncoding.EncodeToString([]byte(testAnswerSDP))+"\n")
	}))

	answer, err := client.ExchangeOffer(context.Background(), "demo", offer)
	require.NoError(t, err)
	assert.Equal(t, testAnswerSDP, answer)
}

func TestExchangeOffer_RawAnswer(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testAnswerSDP)
	}))

	answer, err := client.ExchangeOffer(context.Background(), "demo", "offer")
	require.NoError(t, err)
	assert.Equal(t, testAnswerSDP, answer)
}

func TestExchangeOffer_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
		target error
	}{
		{"server error", http.StatusInternalServerError, "oops", KindTransport, ErrUnexpectedStatus},
		{"empty body", http.StatusOK, "", KindProtocol, ErrEmptyAnswer},
		{"whitespace body", http.StatusOK, "  \n\t", KindProtocol, ErrEmptyAnswer},
		{"not base64", http.StatusOK, "%%%not-base64%%%", KindProtocol, ErrMalformedAnswer},
		{"base64 of garbage", http.StatusOK, base64.StdEncoding.EncodeToString([]byte("hello world")), KindProtocol, ErrMalformedSDP},
		{"sdp without media", http.StatusOK, "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\ns=-\r\nt=0 0\r\n", KindProtocol, ErrMalformedSDP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))

			_, err := client.ExchangeOffer(context.Background(), "demo", "offer")
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestExchangeOffer_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := client.ExchangeOffer(ctx, "demo", "offer")
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDecodeAnswer(t *testing.T) {
	answer, err := DecodeAnswer("  " + EncodeOffer(testAnswerSDP) + "  ")
	require.NoError(t, err)
	assert.Equal(t, testAnswerSDP, answer)

	desc, err := ParseSessionDescription(answer)
	require.NoError(t, err)
	require.Len(t, desc.MediaDescriptions, 1)
	assert.Equal(t, "video", desc.MediaDescriptions[0].MediaName.Media)
}

func TestDecodeAnswer_RawSDP(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"crlf terminated", testAnswerSDP, testAnswerSDP},
		{"missing final crlf", strings.TrimSuffix(testAnswerSDP, "\r\n"), testAnswerSDP},
		{"surrounding whitespace", "\r\n  " + testAnswerSDP + "\r\n\r\n", testAnswerSDP},
		{"lf only", strings.ReplaceAll(strings.TrimSuffix(testAnswerSDP, "\r\n"), "\r\n", "\n"),
			strings.ReplaceAll(testAnswerSDP, "\r\n", "\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, err := DecodeAnswer(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, answer)

			_, err = ParseSessionDescription(answer)
			assert.NoError(t, err)
		})
	}
}

func TestDecodeAnswer_Base64WithoutFinalCRLF(t *testing.T) {
	answer, err := DecodeAnswer(EncodeOffer(strings.TrimSuffix(testAnswerSDP, "\r\n")))
	require.NoError(t, err)
	assert.Equal(t, testAnswerSDP, answer)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(transportError("fetch codecs", "demo", 502, ErrUnexpectedStatus)))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsTransient(protocolError("exchange offer", "demo", ErrEmptyAnswer)))
	assert.False(t, IsTransient(nil))
}

func TestICEServerUnmarshal_NullURLs(t *testing.T) {
	var server ICEServer
	require.NoError(t, server.UnmarshalJSON([]byte(`{"urls":null,"username":"x"}`)))
	assert.Empty(t, server.URLs)
	assert.Empty(t, ToWebRTC([]ICEServer{server}))
}
