package engine

import (
	"time"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// Attribute names read by DeriveMutation. Both spellings are accepted.
var (
	attrUserID        = []string{"userId", "user_id"}
	attrProtocol      = []string{"protocol"}
	attrFromToken     = []string{"fromToken", "from_token"}
	attrToToken       = []string{"toToken", "to_token"}
	attrTransactionID = []string{"transactionId", "transaction_id", "txHash", "tx_hash"}
	attrToken         = []string{"token"}
	attrStrategy      = []string{"strategy"}
)

// DeriveMutation computes the graph projection of rec. ok is false when the record
// contributes nothing; missing then lists the attributes a derivable kind lacked.
func DeriveMutation(rec model.MemoryRecord) (m model.Mutation, ok bool, missing []string) {
	switch rec.Kind {
	case model.KindTransactionRecord:
		return deriveTransaction(rec)
	case model.KindUserPreference:
		return derivePreference(rec)
	case model.KindStrategyOutcome:
		return deriveStrategy(rec)
	}
	return model.Mutation{}, false, nil
}

func requireAttrs(rec model.MemoryRecord, names map[string][]string, order []string) (map[string]string, []string) {
	values := make(map[string]string, len(order))
	var missing []string
	for _, name := range order {
		v := rec.Attr(names[name]...)
		if v == "" {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}
	return values, missing
}

func deriveTransaction(rec model.MemoryRecord) (model.Mutation, bool, []string) {
	v, missing := requireAttrs(rec, map[string][]string{
		"userId":        attrUserID,
		"protocol":      attrProtocol,
		"fromToken":     attrFromToken,
		"toToken":       attrToToken,
		"transactionId": attrTransactionID,
	}, []string{"userId", "protocol", "fromToken", "toToken", "transactionId"})
	if len(missing) > 0 {
		return model.Mutation{}, false, missing
	}

	user := model.NewNode(model.NodeUser, v["userId"], nil)
	protocol := model.NewNode(model.NodeProtocol, v["protocol"], nil)
	from := model.NewNode(model.NodeToken, v["fromToken"], nil)
	to := model.NewNode(model.NodeToken, v["toToken"], nil)
	// Transactions are distinct events: keyed by the record, never merged on attributes.
	tx := model.NewNode(model.NodeTransaction, rec.ID, map[string]any{
		"id":        v["transactionId"],
		"content":   rec.Content,
		"createdAt": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	tx.Create = true

	nodes := []model.NodeOp{user, protocol, from}
	if to.Ref() != from.Ref() {
		nodes = append(nodes, to)
	}
	nodes = append(nodes, tx)
	return model.Mutation{
		RecordID: rec.ID,
		Nodes:    nodes,
		Edges: []model.EdgeOp{
			{Type: model.EdgeExecuted, From: user.Ref(), To: tx.Ref()},
			{Type: model.EdgeOnProtocol, From: tx.Ref(), To: protocol.Ref()},
			{Type: model.EdgeSwappedFrom, From: tx.Ref(), To: from.Ref()},
			{Type: model.EdgeSwappedTo, From: tx.Ref(), To: to.Ref()},
		},
	}, true, nil
}

func derivePreference(rec model.MemoryRecord) (model.Mutation, bool, []string) {
	userID := rec.Attr(attrUserID...)
	protocol := rec.Attr(attrProtocol...)
	token := rec.Attr(attrToken...)
	var missing []string
	if userID == "" {
		missing = append(missing, "userId")
	}
	if protocol == "" && token == "" {
		missing = append(missing, "protocol|token")
	}
	if len(missing) > 0 {
		return model.Mutation{}, false, missing
	}

	user := model.NewNode(model.NodeUser, userID, nil)
	m := model.Mutation{RecordID: rec.ID, Nodes: []model.NodeOp{user}}
	if protocol != "" {
		p := model.NewNode(model.NodeProtocol, protocol, nil)
		m.Nodes = append(m.Nodes, p)
		m.Edges = append(m.Edges, model.EdgeOp{Type: model.EdgePrefers, From: user.Ref(), To: p.Ref()})
	}
	if token != "" {
		t := model.NewNode(model.NodeToken, token, nil)
		m.Nodes = append(m.Nodes, t)
		m.Edges = append(m.Edges, model.EdgeOp{Type: model.EdgePrefers, From: user.Ref(), To: t.Ref()})
	}
	return m, true, nil
}

func deriveStrategy(rec model.MemoryRecord) (model.Mutation, bool, []string) {
	v, missing := requireAttrs(rec, map[string][]string{
		"userId":   attrUserID,
		"strategy": attrStrategy,
	}, []string{"userId", "strategy"})
	if len(missing) > 0 {
		return model.Mutation{}, false, missing
	}
	user := model.NewNode(model.NodeUser, v["userId"], nil)
	props := map[string]any{"lastOutcome": rec.Content}
	if p, ok := rec.Attributes["profitable"]; ok {
		props["profitable"] = p
	}
	strategy := model.NewNode(model.NodeStrategy, v["strategy"], props)
	m := model.Mutation{
		RecordID: rec.ID,
		Nodes:    []model.NodeOp{user, strategy},
		Edges:    []model.EdgeOp{{Type: model.EdgeLearned, From: user.Ref(), To: strategy.Ref()}},
	}
	if protocol := rec.Attr(attrProtocol...); protocol != "" {
		p := model.NewNode(model.NodeProtocol, protocol, nil)
		m.Nodes = append(m.Nodes, p)
		m.Edges = append(m.Edges, model.EdgeOp{Type: model.EdgeInteractedWith, From: strategy.Ref(), To: p.Ref()})
	}
	return m, true, nil
}
