package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"gymkana-live-service/internal/app"
	"gymkana-live-service/internal/domain"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	service  *app.LiveService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.LiveService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type watchFeedPayload struct {
	ChallengeID string `json:"challengeId"`
}

type votePayload struct {
	ResponseID  string `json:"responseId"`
	VoterName   string `json:"voterName"`
	VoterTeamID string `json:"voterTeamId"`
}

type submitResponsePayload struct {
	ChallengeID string `json:"challengeId"`
	TeamID      string `json:"teamId"`
	UserName    string `json:"userName"`
	Content     string `json:"content"`
	Type        string `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the
// live view use cases. One connection can watch the ranking board and
// one challenge feed at a time; selecting a new challenge tears down the
// previous feed subscription before the new one starts, so no stale
// refresh ever fires against an abandoned scope.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	if eventID == "" {
		http.Error(w, "missing eventId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	// Single writer goroutine owns the connection; everything else goes
	// through the send channel.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	var forwarders sync.WaitGroup
	var feedCancel, rankingCancel func()

	startRanking := func(ctx context.Context) {
		if rankingCancel != nil {
			rankingCancel()
		}
		updates, cancel, err := h.service.WatchRanking(ctx, eventID)
		if err != nil {
			sendOrClose(send, closeSignals, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		rankingCancel = cancel
		forwarders.Add(1)
		go forward(&forwarders, send, closeSignals, "ranking", updates)
	}

	startFeed := func(ctx context.Context, challengeID string) {
		if feedCancel != nil {
			feedCancel()
		}
		updates, cancel, err := h.service.WatchFeed(ctx, challengeID)
		if err != nil {
			sendOrClose(send, closeSignals, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		feedCancel = cancel
		forwarders.Add(1)
		go forward(&forwarders, send, closeSignals, "feed", updates)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "listChallenges":
			challenges, err := h.service.Challenges(r.Context(), eventID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "challenges", Payload: challenges}
		case "watchRanking":
			startRanking(r.Context())
		case "watchFeed":
			var payload watchFeedPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.ChallengeID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid watchFeed payload"}}
				continue
			}
			startFeed(r.Context(), payload.ChallengeID)
		case "vote":
			var payload votePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid vote payload"}}
				continue
			}
			vote, err := h.service.CastVote(r.Context(), payload.ResponseID, payload.VoterName, payload.VoterTeamID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "voteResult", Payload: vote}
		case "submitResponse":
			var payload submitResponsePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submitResponse payload"}}
				continue
			}
			response, err := h.service.SubmitResponse(r.Context(), domain.ResponseDraft{
				ChallengeID: payload.ChallengeID,
				TeamID:      payload.TeamID,
				UserName:    payload.UserName,
				Content:     payload.Content,
				Type:        domain.MediaType(payload.Type),
			})
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "responseAccepted", Payload: response}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	if feedCancel != nil {
		feedCancel()
	}
	if rankingCancel != nil {
		rankingCancel()
	}
	close(closeSignals)
	forwarders.Wait()
	close(send)
	<-writerDone
}

// forward bridges one watch channel into the connection's send channel
// until the watch closes or the connection tears down.
func forward[T any](wg *sync.WaitGroup, send chan outboundMessage[any], closeSignals <-chan struct{}, msgType string, updates <-chan T) {
	defer wg.Done()
	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			select {
			case send <- outboundMessage[any]{Type: msgType, Payload: snapshot}:
			case <-closeSignals:
				return
			}
		case <-closeSignals:
			return
		}
	}
}

func sendOrClose(send chan outboundMessage[any], closeSignals <-chan struct{}, msg outboundMessage[any]) {
	select {
	case send <- msg:
	case <-closeSignals:
	}
}
