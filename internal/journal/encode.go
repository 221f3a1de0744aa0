package journal

import (
	"database/sql"
	"encoding/json"
	"math"

	"github.com/talgya/bazaar/internal/economy"
)

// Long runs overflow product demand to infinity and then NaN. JSON has no
// encoding for either and SQLite turns NaN into NULL, so both sinks store
// non-finite values as null.

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// jsonFloat is nil for a non-finite value, which encodes as null.
func jsonFloat(v float64) *float64 {
	if !finite(v) {
		return nil
	}
	return &v
}

func sqlFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: finite(v)}
}

// fromSQL reads a stored NULL back as NaN.
func fromSQL(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

type eventLine struct {
	Tick        uint64   `json:"tick"`
	Category    string   `json:"category"`
	Kind        string   `json:"kind"`
	NpcID       uint64   `json:"npc_id,omitempty"`
	BusinessID  int      `json:"business_id,omitempty"`
	Product     string   `json:"product,omitempty"`
	Amount      int      `json:"amount,omitempty"`
	Price       *float64 `json:"price"`
	Total       *float64 `json:"total"`
	Error       string   `json:"error,omitempty"`
	Description string   `json:"description"`
}

type quoteLine struct {
	ID          economy.BusinessID `json:"id"`
	Name        string             `json:"name"`
	StockPrice  *float64           `json:"stock_price"`
	StockDemand *float64           `json:"stock_demand"`
	Balance     *float64           `json:"balance"`
	Products    int                `json:"products"`
	GoodsPrice  *float64           `json:"goods_price"`
}

type statsLine struct {
	Population     int      `json:"population"`
	Listed         int      `json:"listed"`
	TotalCash      *float64 `json:"total_cash"`
	TotalSavings   *float64 `json:"total_savings"`
	MeanStockPrice *float64 `json:"mean_stock_price"`
	MeanPriceDrift *float64 `json:"mean_price_drift"`
	Diverged       int      `json:"diverged"`
	Trades         int      `json:"trades"`
	Rejections     int      `json:"rejections"`
	Founded        int      `json:"founded"`
	Disposed       int      `json:"disposed"`
}

type entryLine struct {
	RunID  string      `json:"run_id"`
	Type   string      `json:"type"`
	Tick   uint64      `json:"tick"`
	Event  *eventLine  `json:"event,omitempty"`
	Quotes []quoteLine `json:"quotes,omitempty"`
	Stats  *statsLine  `json:"stats,omitempty"`
}

// MarshalJSON writes non-finite floats as null. Decoding a null leaves the
// field at zero, so Entry reads back with the default decoder.
func (e Entry) MarshalJSON() ([]byte, error) {
	line := entryLine{RunID: e.RunID, Type: e.Type, Tick: e.Tick}
	if ev := e.Event; ev != nil {
		line.Event = &eventLine{
			Tick:        ev.Tick,
			Category:    ev.Category,
			Kind:        ev.Kind,
			NpcID:       ev.NpcID,
			BusinessID:  ev.BusinessID,
			Product:     ev.Product,
			Amount:      ev.Amount,
			Price:       jsonFloat(ev.Price),
			Total:       jsonFloat(ev.Total),
			Error:       ev.Error,
			Description: ev.Description,
		}
	}
	if len(e.Quotes) > 0 {
		line.Quotes = make([]quoteLine, len(e.Quotes))
		for i, q := range e.Quotes {
			line.Quotes[i] = quoteLine{
				ID:          q.ID,
				Name:        q.Name,
				StockPrice:  jsonFloat(q.StockPrice),
				StockDemand: jsonFloat(q.StockDemand),
				Balance:     jsonFloat(q.Balance),
				Products:    q.Products,
				GoodsPrice:  jsonFloat(q.GoodsPrice),
			}
		}
	}
	if st := e.Stats; st != nil {
		line.Stats = &statsLine{
			Population:     st.Population,
			Listed:         st.Listed,
			TotalCash:      jsonFloat(st.TotalCash),
			TotalSavings:   jsonFloat(st.TotalSavings),
			MeanStockPrice: jsonFloat(st.MeanStockPrice),
			MeanPriceDrift: jsonFloat(st.MeanPriceDrift),
			Diverged:       st.Diverged,
			Trades:         st.Trades,
			Rejections:     st.Rejections,
			Founded:        st.Founded,
			Disposed:       st.Disposed,
		}
	}
	return json.Marshal(line)
}
