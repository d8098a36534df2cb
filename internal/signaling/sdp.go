package signaling

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// EncodeOffer 请求体中的 offer 使用标准 base64
func EncodeOffer(offerSDP string) string {
	return base64.StdEncoding.EncodeToString([]byte(offerSDP))
}

// DecodeAnswer 解码 answer 响应体。
// 服务端通常返回 base64 编码的 SDP，以 "v=" 开头的原始 SDP 同样接受。
// 返回的 SDP 总以换行结尾，pion 解析最后一行时依赖它。
func DecodeAnswer(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", ErrEmptyAnswer
	}

	raw := trimmed
	if !strings.HasPrefix(trimmed, "v=") {
		decoded, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
		}
		raw = strings.TrimSpace(string(decoded))
		if raw == "" {
			return "", ErrEmptyAnswer
		}
	}
	raw = terminateSDP(raw)

	if _, err := ParseSessionDescription(raw); err != nil {
		return "", err
	}
	return raw, nil
}

// terminateSDP 按正文使用的换行风格补上末行换行
func terminateSDP(raw string) string {
	if strings.Contains(raw, "\n") && !strings.Contains(raw, "\r\n") {
		return raw + "\n"
	}
	return raw + "\r\n"
}

// ParseSessionDescription 解析并做最基本的检查：至少一个媒体段
func ParseSessionDescription(raw string) (*sdp.SessionDescription, error) {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSDP, err)
	}
	if len(desc.MediaDescriptions) == 0 {
		return nil, fmt.Errorf("%w: no media sections", ErrMalformedSDP)
	}
	return desc, nil
}
