package render

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"dormantwatch/internal/model"
)

// Rendered is the formatted alert pair. Fallback carries a strict subset of
// Primary's information with no Markdown markup, so it succeeds whenever
// Primary is rejected purely for formatting reasons.
type Rendered struct {
	Primary  string
	Fallback string
}

var weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
var weiPerMicroEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(12), nil)

// FormatEther renders a wei amount at fixed 6-decimal precision.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.000000"
	}

	v := new(big.Int).Set(wei)
	sign := ""
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}

	whole, rem := new(big.Int).DivMod(v, weiPerEth, new(big.Int))
	micro := new(big.Int).Div(rem, weiPerMicroEth)
	return fmt.Sprintf("%s%s.%06d", sign, whole.String(), micro.Uint64())
}

// FormatTimestamp renders unix seconds in the receiver's local time.
func FormatTimestamp(unixSeconds uint64) string {
	if unixSeconds == 0 {
		return "unknown"
	}
	return time.Unix(int64(unixSeconds), 0).Local().Format("2006-01-02 15:04:05")
}

// Alert renders a typed alert. Pure and panic-free: malformed input renders
// to a best-effort dump, never an error.
func Alert(event model.AlertEvent) Rendered {
	switch event.Kind {
	case model.KindReactivation:
		return renderReactivation(event)
	case model.KindContractAdded:
		return renderContractRef(event, event.Added, "Contract added to monitoring")
	case model.KindContractRemoved:
		return renderContractRef(event, event.Removed, "Contract removed from monitoring")
	case model.KindConfigChanged:
		return renderConfigChanged(event)
	default:
		return renderDecodeFailed(event)
	}
}

func renderReactivation(event model.AlertEvent) Rendered {
	r := event.Reactivated
	if r == nil {
		return renderDecodeFailed(event)
	}

	previous := FormatEther(r.PreviousBalance)
	current := FormatEther(r.CurrentBalance)

	var primary strings.Builder
	primary.WriteString("🚨 *Dormant Contract Reactivated* 🚨\n\n")
	fmt.Fprintf(&primary, "Contract: `%s`\n", r.Contract)
	fmt.Fprintf(&primary, "Previous: %s ETH\n", previous)
	fmt.Fprintf(&primary, "Current: %s ETH\n", current)
	fmt.Fprintf(&primary, "Dormant since: %s\n", FormatTimestamp(r.DormantSince))
	fmt.Fprintf(&primary, "Activated: %s\n", FormatTimestamp(r.At))
	fmt.Fprintf(&primary, "Block: %d\n", event.BlockNumber)
	fmt.Fprintf(&primary, "Tx: `%s`\n\n", event.TxHash)
	primary.WriteString("This contract was previously dormant and has suddenly become active. Investigate immediately.")

	fallback := fmt.Sprintf(
		"ALERT: dormant contract %s reactivated at block %d. Previous: %s ETH, Current: %s ETH. Tx %s",
		r.Contract, event.BlockNumber, previous, current, event.TxHash,
	)

	return Rendered{Primary: primary.String(), Fallback: fallback}
}

func renderContractRef(event model.AlertEvent, ref *model.ContractRef, title string) Rendered {
	if ref == nil {
		return renderDecodeFailed(event)
	}

	primary := fmt.Sprintf("📋 *%s*\n\nContract: `%s`\nBlock: %d\nTx: `%s`",
		title, ref.Contract, event.BlockNumber, event.TxHash)
	fallback := fmt.Sprintf("%s: %s at block %d. Tx %s",
		title, ref.Contract, event.BlockNumber, event.TxHash)

	return Rendered{Primary: primary, Fallback: fallback}
}

func renderConfigChanged(event model.AlertEvent) Rendered {
	c := event.Config
	if c == nil {
		return renderDecodeFailed(event)
	}

	primary := fmt.Sprintf("⚙️ *Monitoring Config Changed*\n\nOperator: `%s`\nChannel: %d\nBlock: %d\nTx: `%s`",
		c.Operator, c.ChannelID, event.BlockNumber, event.TxHash)
	fallback := fmt.Sprintf("Monitoring config changed by %s, channel %d, at block %d. Tx %s",
		c.Operator, c.ChannelID, event.BlockNumber, event.TxHash)

	return Rendered{Primary: primary, Fallback: fallback}
}

func renderDecodeFailed(event model.AlertEvent) Rendered {
	dump := "no raw payload"
	if event.Raw != nil {
		if data, err := json.Marshal(event.Raw); err == nil {
			dump = string(data)
		}
	}

	primary := fmt.Sprintf("⚠️ *Could not decode event*\n\nBlock: %d\nTx: `%s`\nLog index: %d\n\n```\n%s\n```",
		event.BlockNumber, event.TxHash, event.LogIndex, dump)
	fallback := fmt.Sprintf("Could not decode event at block %d, tx %s, log index %d",
		event.BlockNumber, event.TxHash, event.LogIndex)

	return Rendered{Primary: primary, Fallback: fallback}
}
