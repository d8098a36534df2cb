package signaling

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEServer 信令服务下发的ICE服务器描述
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// UnmarshalJSON urls 既可以是字符串也可以是数组
func (s *ICEServer) UnmarshalJSON(data []byte) error {
	var raw struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Username = raw.Username
	s.Credential = raw.Credential
	s.URLs = nil

	if len(raw.URLs) == 0 || string(raw.URLs) == "null" {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw.URLs, &single); err == nil {
		s.URLs = []string{single}
		return nil
	}
	if err := json.Unmarshal(raw.URLs, &s.URLs); err != nil {
		return fmt.Errorf("urls must be a string or an array of strings: %w", err)
	}
	return nil
}

type iceServersResponse struct {
	ICEServers []ICEServer `json:"iceServers"`
}

// ToWebRTC 转换为 pion 的ICE服务器配置
func ToWebRTC(servers []ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		if len(s.URLs) == 0 {
			continue
		}
		server := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...)}
		if s.Username != "" || s.Credential != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}

// Codec 流的一个媒体描述，只关心 Type 字段
type Codec struct {
	Type string `json:"Type"`
}

// Kind 映射为 pion 的媒体类型
func (c Codec) Kind() (webrtc.RTPCodecType, error) {
	kind := webrtc.NewRTPCodecType(strings.ToLower(strings.TrimSpace(c.Type)))
	if kind == 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, c.Type)
	}
	return kind, nil
}
