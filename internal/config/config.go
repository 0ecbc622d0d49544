// Package config loads the plugin's proxy settings from the host's
// configuration, matching spec section 4.7/6: new block-scoped keys
// with a fallback to legacy global keys.
package config

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidProxyPort is returned when a configured proxy_port value is
// not a valid TCP port number.
var ErrInvalidProxyPort = errors.New("config: invalid proxy port")

// ErrProxyUserWithoutPassword is returned when only one of
// proxy_user/proxy_password is set; the upstream proxy URL construction
// requires both or neither.
var ErrProxyUserWithoutPassword = errors.New("config: proxy_user set without proxy_password (or vice versa)")

// Settings holds the subset of plugin configuration spec section 6
// names: the proxy host/port/credentials used by the transfer engine.
type Settings struct {
	ProxyHost     string
	ProxyPort     uint
	ProxyUser     string
	ProxyPassword string
}

// blockKeys are the new, plugin-block-scoped configuration keys.
var blockKeys = struct {
	host, port, user, password string
}{"proxy", "proxy_port", "proxy_user", "proxy_password"}

// legacyKeys are the older, process-global configuration keys this
// plugin falls back to, as a whole group, when the block does not set
// a proxy host, per the original's input_curl_parse_proxy gating the
// entire legacy read on proxy_host being unset (CurlInputPlugin.cxx's
// proxy setup) rather than falling back field by field.
var legacyKeys = struct {
	host, port, user, password string
}{"http_proxy_host", "http_proxy_port", "http_proxy_user", "http_proxy_password"}

// Load builds Settings from a block-scoped key/value map and a legacy
// global key/value map. The block's host key decides which group is
// read: if it is set, every field comes from block (an unset
// proxy_port/proxy_user/proxy_password stays empty rather than pulling
// from legacy); if it is absent, every field comes from legacy. Both
// maps may be nil.
func Load(block, legacy map[string]string) (*Settings, error) {
	useBlock := block[blockKeys.host] != ""

	s := &Settings{}
	var rawPort string
	if useBlock {
		s.ProxyHost = block[blockKeys.host]
		s.ProxyUser = block[blockKeys.user]
		s.ProxyPassword = block[blockKeys.password]
		rawPort = block[blockKeys.port]
	} else {
		s.ProxyHost = legacy[legacyKeys.host]
		s.ProxyUser = legacy[legacyKeys.user]
		s.ProxyPassword = legacy[legacyKeys.password]
		rawPort = legacy[legacyKeys.port]
	}

	if rawPort != "" {
		port, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxyPort, rawPort)
		}
		s.ProxyPort = uint(port)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks internal consistency of the loaded settings.
func (s *Settings) Validate() error {
	if (s.ProxyUser == "") != (s.ProxyPassword == "") {
		return ErrProxyUserWithoutPassword
	}
	return nil
}
