package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"okey/internal/room"
	"okey/internal/session"
	"okey/internal/tiles"
)

// WSMessage is the JSON envelope for WebSocket messages. Replies echo the
// request's ReqID.
type WSMessage struct {
	Type    string          `json:"type"`
	ReqID   string          `json:"reqId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Request types.
const (
	msgCreateRoom  = "create_room"
	msgGetRooms    = "get_rooms"
	msgJoinRoom    = "join_room"
	msgStartGame   = "start_game"
	msgAddBot      = "add_bot"
	msgDrawTile    = "draw_tile"
	msgDiscardTile = "discard_tile"
	msgLeaveRoom   = "leave_room"
)

// Reply and push types.
const (
	msgWelcome         = "welcome"
	msgAck             = "ack"
	msgError           = "error"
	msgRoomsList       = "rooms_list_update"
	msgRoomUpdate      = "room_update"
	msgGameStarted     = "game_started"
	msgPlayerDrew      = "player_drew"
	msgPlayerDiscarded = "player_discarded"
	msgRoomClosed      = "room_closed"
)

var (
	errBadRequest  = errors.New("bad request")
	errUnknownType = errors.New("unknown message type")
)

type welcomePayload struct {
	ConnectionID string `json:"connectionId"`
}

type requestPayload struct {
	RoomCode   string      `json:"roomCode"`
	PlayerName string      `json:"playerName"`
	Source     room.Source `json:"source"`
	HandIndex  *int        `json:"handIndex"`
}

type tilePayload struct {
	Tile tiles.Tile `json:"tile"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	sess := s.sessions.Connect()
	log := s.log.With(zap.String("conn", sess.ID))
	log.Info("client connected")

	// Writer goroutine: send messages from the channel to the websocket
	go func() {
		for msg := range sess.Send {
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}()

	sess.Deliver(encode(msgWelcome, "", welcomePayload{ConnectionID: sess.ID}))

	// Reader loop: handle incoming messages
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.Deliver(encodeError("", fmt.Errorf("%w: invalid message", errBadRequest)))
			continue
		}
		reply, err := s.handleMessage(sess, msg)
		if err != nil {
			log.Debug("request rejected", zap.String("type", msg.Type), zap.Error(err))
			sess.Deliver(encodeError(msg.ReqID, err))
			continue
		}
		sess.Deliver(encode(msgAck, msg.ReqID, reply))
	}

	// A dropped connection gives up its seat.
	if res := s.registry.Leave(sess.ID); res.RoomID != "" {
		log.Info("client left room on disconnect", zap.String("room", res.RoomID), zap.Bool("room_closed", res.RoomBecameEmpty))
	}
	s.sessions.Disconnect(sess.ID)
	log.Info("client disconnected")
}

// handleMessage applies one request and returns the reply payload.
func (s *Server) handleMessage(sess *session.Session, msg WSMessage) (any, error) {
	var req requestPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return nil, fmt.Errorf("%w: invalid %s payload", errBadRequest, msg.Type)
		}
	}

	switch msg.Type {
	case msgCreateRoom:
		name, err := playerName(req)
		if err != nil {
			return nil, err
		}
		rm, err := s.registry.CreateRoom(sess.ID, name)
		if err != nil {
			return nil, err
		}
		return rm.Public(), nil

	case msgGetRooms:
		return s.registry.List(), nil

	case msgJoinRoom:
		name, err := playerName(req)
		if err != nil {
			return nil, err
		}
		rm, err := s.registry.JoinRoom(req.RoomCode, sess.ID, name)
		if err != nil {
			return nil, err
		}
		return rm.Public(), nil

	case msgStartGame:
		rm, err := s.registry.StartGameAs(req.RoomCode, sess.ID)
		if err != nil {
			return nil, err
		}
		return s.registry.SeatView(rm.ID, sess.ID)

	case msgAddBot:
		rm, err := s.registry.AddBotAs(req.RoomCode, sess.ID)
		if err != nil {
			return nil, err
		}
		return rm.Public(), nil

	case msgDrawTile:
		t, err := s.registry.DrawTile(req.RoomCode, sess.ID, req.Source)
		if err != nil {
			return nil, err
		}
		return tilePayload{Tile: t}, nil

	case msgDiscardTile:
		if req.HandIndex == nil {
			return nil, fmt.Errorf("%w: handIndex required", errBadRequest)
		}
		t, err := s.registry.DiscardTile(req.RoomCode, sess.ID, *req.HandIndex)
		if err != nil {
			return nil, err
		}
		return tilePayload{Tile: t}, nil

	case msgLeaveRoom:
		return s.registry.Leave(sess.ID), nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownType, msg.Type)
	}
}

func playerName(req requestPayload) (string, error) {
	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		return "", fmt.Errorf("%w: playerName required", errBadRequest)
	}
	return name, nil
}

// errorCode maps transport errors first, then room errors.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return "BAD_REQUEST"
	case errors.Is(err, errUnknownType):
		return "UNKNOWN_TYPE"
	default:
		return room.Code(err)
	}
}

func encode(msgType, reqID string, payload any) []byte {
	p, _ := json.Marshal(payload)
	msg, _ := json.Marshal(WSMessage{Type: msgType, ReqID: reqID, Payload: p})
	return msg
}

func encodeError(reqID string, err error) []byte {
	return encode(msgError, reqID, errorPayload{Code: errorCode(err), Message: err.Error()})
}
