package rtc

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

const attrICEUfrag = "ice-ufrag"

// sdpInfo is what the client logs about a remote description.
type sdpInfo struct {
	Media    []string
	ICEUfrag string
}

// inspectSDP parses raw so malformed descriptions are rejected with a
// parse error before they reach the peer connection.
func inspectSDP(raw string) (sdpInfo, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(raw)); err != nil {
		return sdpInfo{}, fmt.Errorf("parse sdp: %w", err)
	}

	var info sdpInfo
	if v, ok := sd.Attribute(attrICEUfrag); ok {
		info.ICEUfrag = v
	}
	for _, m := range sd.MediaDescriptions {
		info.Media = append(info.Media, m.MediaName.Media)
		if info.ICEUfrag == "" {
			if v, ok := m.Attribute(attrICEUfrag); ok {
				info.ICEUfrag = v
			}
		}
	}
	return info, nil
}
