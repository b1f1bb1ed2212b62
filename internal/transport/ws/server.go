package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fleamarket.gg/internal/protocol"
	"fleamarket.gg/internal/sim/catalogs"
	"fleamarket.gg/internal/sim/market"
)

type Server struct {
	market *market.Market
	cats   *catalogs.Catalogs
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(m *market.Market, cats *catalogs.Catalogs, logger *log.Logger) *Server {
	return &Server{
		market: m,
		cats:   cats,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			res := s.dispatch(msg)
			b, err := json.Marshal(res)
			if err != nil {
				s.log.Printf("ws: marshal result: %v", err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

// dispatch decodes one request message and executes it against the market.
// Every request gets a RESULT, including malformed ones when a req_id can be
// recovered.
func (s *Server) dispatch(msg []byte) protocol.ResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.Fail("", protocol.ErrProtoBadRequest, "malformed message")
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.Fail("", protocol.ErrProtoBadRequest, "bad protocol_version")
	}

	switch base.Type {
	case protocol.TypeSearch:
		var req protocol.SearchMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.Fail("", protocol.ErrProtoBadRequest, "malformed SEARCH")
		}
		return s.handleSearch(req)
	case protocol.TypeGetOffer:
		var req protocol.GetOfferMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.Fail("", protocol.ErrProtoBadRequest, "malformed GET_OFFER")
		}
		o, err := s.market.GetOffer(req.OfferID)
		if err != nil {
			return failFor(req.ReqID, err)
		}
		return protocol.OK(req.ReqID, o)
	case protocol.TypeGetPrices:
		var req protocol.GetPricesMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.Fail("", protocol.ErrProtoBadRequest, "malformed GET_PRICES")
		}
		return protocol.OK(req.ReqID, s.market.GetItemPrices())
	case protocol.TypeQuoteTax:
		var req protocol.QuoteTaxMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.Fail("", protocol.ErrProtoBadRequest, "malformed QUOTE_TAX")
		}
		return s.handleQuoteTax(req)
	case protocol.TypeCommitSale:
		var req protocol.CommitSaleMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.Fail("", protocol.ErrProtoBadRequest, "malformed COMMIT_SALE")
		}
		rec, err := s.market.CommitSale(req.OfferID, req.Amount, req.BuyerID, req.DraftID)
		if err != nil {
			return failFor(req.ReqID, err)
		}
		return protocol.OK(req.ReqID, rec)
	case protocol.TypeHideOffer:
		var req protocol.HideOfferMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.Fail("", protocol.ErrProtoBadRequest, "malformed HIDE_OFFER")
		}
		if err := s.market.HideOffer(req.OfferID); err != nil {
			return failFor(req.ReqID, err)
		}
		return protocol.OK(req.ReqID, nil)
	case protocol.TypeRemoveStack:
		var req protocol.RemoveStackMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			return protocol.Fail("", protocol.ErrProtoBadRequest, "malformed REMOVE_STACK")
		}
		if req.Amount <= 0 {
			return protocol.Fail(req.ReqID, protocol.ErrBadRequest, "amount must be positive")
		}
		remaining, err := s.market.RemoveOfferStack(req.OfferID, req.Amount)
		if err != nil {
			return failFor(req.ReqID, err)
		}
		return protocol.OK(req.ReqID, map[string]any{"remaining": remaining})
	default:
		return protocol.Fail("", protocol.ErrProtoBadRequest, "unknown message type")
	}
}

func (s *Server) handleSearch(req protocol.SearchMsg) protocol.ResultMsg {
	key, ok := sortKeys[req.Sort.Key]
	if !ok {
		return protocol.Fail(req.ReqID, protocol.ErrBadRequest, "unknown sort key")
	}
	res := s.market.Search(market.FilterSpec{
		HandbookCategory: req.Filter.HandbookCategory,
		LinkedSearchTpl:  req.Filter.LinkedSearchTpl,
		NeededSearchTpl:  req.Filter.NeededSearchTpl,
		BuildItemTpls:    req.Filter.BuildItemTpls,
		Text:             req.Filter.Text,
	}, market.SortSpec{Key: key, Desc: req.Sort.Desc}, req.Page, req.Limit)
	return protocol.OK(req.ReqID, res)
}

func (s *Server) handleQuoteTax(req protocol.QuoteTaxMsg) protocol.ResultMsg {
	var items []market.OfferItem
	if err := json.Unmarshal(req.Items, &items); err != nil {
		return protocol.Fail(req.ReqID, protocol.ErrBadRequest, "malformed draft items")
	}
	if len(items) == 0 || req.DraftID == "" {
		return protocol.Fail(req.ReqID, protocol.ErrBadRequest, "empty draft")
	}
	tax, err := s.market.QuoteTax(req.DraftID, market.OfferDraft{
		Items:              items,
		RequirementsValue:  req.RequirementsValue,
		OfferItemCount:     req.OfferItemCount,
		SellInOnePiece:     req.SellInOnePiece,
		SellerBonusPercent: req.SellerBonusPercent,
	})
	if err != nil {
		return failFor(req.ReqID, err)
	}
	return protocol.OK(req.ReqID, map[string]any{"tax": tax})
}

var sortKeys = map[string]market.SortKey{
	"":       market.SortByID,
	"id":     market.SortByID,
	"barter": market.SortByBarter,
	"rating": market.SortByRating,
	"name":   market.SortByName,
	"price":  market.SortByPrice,
	"expiry": market.SortByExpiry,
}

// failFor maps engine errors onto wire codes.
func failFor(reqID string, err error) protocol.ResultMsg {
	switch {
	case errors.Is(err, market.ErrOfferNotFound):
		return protocol.Fail(reqID, protocol.ErrOfferNotFound, err.Error())
	case errors.Is(err, market.ErrUnknownItem):
		return protocol.Fail(reqID, protocol.ErrUnknownItem, err.Error())
	case errors.Is(err, market.ErrNoQuote):
		return protocol.Fail(reqID, protocol.ErrNoQuote, err.Error())
	case errors.Is(err, market.ErrStackTooSmall):
		return protocol.Fail(reqID, protocol.ErrStackTooSmall, err.Error())
	default:
		return protocol.Fail(reqID, protocol.ErrInternal, err.Error())
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:               protocol.TypeWelcome,
		ProtocolVersion:    protocol.Version,
		SessionID:          sessionID,
		RunIntervalSeconds: s.market.RunIntervalSeconds(),
		Catalogs: protocol.CatalogDigests{
			ItemsDigest:    s.cats.Items.DefsDigest,
			PresetsDigest:  s.cats.Presets.Digest,
			HandbookDigest: s.cats.Handbook.Digest,
			PricesDigest:   s.cats.Prices.Digest,
			LocalesDigest:  s.cats.Locales.Digest,
			TradersDigest:  s.cats.Traders.Digest,
			EventsDigest:   s.cats.Events.Digest,
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	s.log.Printf("ws: session %s opened for %q", sessionID, hello.ClientName)

	return sessionID, make(chan []byte, 16)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
