package remote

import (
	"encoding/json"

	"sybot/pkg/murmur"
)

// Method names understood by the host's meta endpoint.
const (
	methodGetVersion         = "getVersion"
	methodGetBootedServers   = "getBootedServers"
	methodGetAllServers      = "getAllServers"
	methodAddCallback        = "addCallback"
	methodIsRunning          = "isRunning"
	methodGetUsers           = "getUsers"
	methodSendMessage        = "sendMessage"
	methodSendMessageChannel = "sendMessageChannel"
	methodGetConf            = "getConf"
	methodGetUptime          = "getUptime"
	methodGetTexture         = "getTexture"
)

// Callback event names pushed by the host.
const (
	eventStarted             = "started"
	eventStopped             = "stopped"
	eventUserConnected       = "userConnected"
	eventUserDisconnected    = "userDisconnected"
	eventUserStateChanged    = "userStateChanged"
	eventUserTextMessage     = "userTextMessage"
	eventChannelCreated      = "channelCreated"
	eventChannelRemoved      = "channelRemoved"
	eventChannelStateChanged = "channelStateChanged"
)

// request is one outbound call. Ctx carries the shared secret on every call.
type request struct {
	ID     uint64            `json:"id"`
	Ctx    map[string]string `json:"ctx"`
	Server *int              `json:"server,omitempty"`
	Method string            `json:"method"`
	Params any               `json:"params,omitempty"`
}

// frame is any inbound message: a call response (ID set) or a callback push (Callback set).
type frame struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *remoteError    `json:"error,omitempty"`

	Callback string              `json:"callback,omitempty"`
	Event    string              `json:"event,omitempty"`
	Server   int                 `json:"server,omitempty"`
	User     *murmur.User        `json:"user,omitempty"`
	Message  *murmur.TextMessage `json:"message,omitempty"`
	Channel  *murmur.Channel     `json:"channel,omitempty"`
}

type remoteError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Version is the host software version.
type Version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Patch int    `json:"patch"`
	Text  string `json:"text"`
}

var exceptionCategories = map[string]string{
	"InvalidSecretException":  murmur.ErrorInvalidSecret,
	"ServerBootedException":   murmur.ErrorServerNotRunning,
	"InvalidSessionException": murmur.ErrorInvalidSession,
	"InvalidChannelException": murmur.ErrorInvalidChannel,
}

func (e *remoteError) toError() error {
	category, ok := exceptionCategories[e.Type]
	if !ok {
		category = murmur.ErrorRemote
	}

	detail := e.Message
	if detail == "" {
		detail = e.Type
	}

	return murmur.NewError(category, detail)
}

type addCallbackParams struct {
	Callback string `json:"callback"`
}

type sendMessageParams struct {
	Session int    `json:"session"`
	Text    string `json:"text"`
}

type sendMessageChannelParams struct {
	Channel int    `json:"channel"`
	Tree    bool   `json:"tree"`
	Text    string `json:"text"`
}

type getConfParams struct {
	Key string `json:"key"`
}

type getTextureParams struct {
	UserID int `json:"userid"`
}
