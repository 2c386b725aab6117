package query

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dormantwatch/internal/model"
)

// A responder with no chain wiring: any command that reaches the registry
// would panic, so these tests double as proof that the paths below never
// issue a read-only call.
func detachedResponder() *Responder {
	return NewResponder(nil, nil, nil, time.Second, nil)
}

func TestRespondRejectsMalformedAddressWithoutChainCall(t *testing.T) {
	r := detachedResponder()

	cases := []string{
		"info not-an-address",
		"info 0x123",
		"info 0xZZZZ000000000000000000000000000000000000",
		"/info deadbeef!",
	}

	for _, command := range cases {
		reply, ok := r.Respond(context.Background(), command)
		if !ok {
			t.Fatalf("%q: info is a recognized command", command)
		}
		if !strings.Contains(reply, "Invalid address") {
			t.Errorf("%q: reply = %q, want invalid-address rejection", command, reply)
		}
	}
}

func TestRespondInfoRequiresArgument(t *testing.T) {
	reply, ok := detachedResponder().Respond(context.Background(), "info")
	if !ok {
		t.Fatalf("info without argument not recognized")
	}
	if !strings.Contains(reply, "Usage: info") {
		t.Fatalf("reply = %q, want usage hint", reply)
	}
}

func TestRespondIgnoresUnrecognizedCommands(t *testing.T) {
	r := detachedResponder()

	for _, command := range []string{"", "   ", "frobnicate", "/unknown arg", "statusx"} {
		if reply, ok := r.Respond(context.Background(), command); ok {
			t.Errorf("%q: recognized with reply %q, want silent ignore", command, reply)
		}
	}
}

type fakeChainReader struct {
	chainID *big.Int
	height  uint64
	balance *big.Int
}

func (f *fakeChainReader) GetChainID(context.Context) (*big.Int, error) {
	if f.chainID == nil {
		return nil, fmt.Errorf("chain id unavailable")
	}
	return f.chainID, nil
}

func (f *fakeChainReader) LatestBlockNumber(context.Context) (uint64, error) {
	return f.height, nil
}

func (f *fakeChainReader) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if f.balance == nil {
		return nil, fmt.Errorf("balance unavailable")
	}
	return f.balance, nil
}

type fakeRegistryReader struct {
	count      uint64
	info       model.MonitoredContract
	dormant    bool
	dormantErr error
	period     uint64
}

func (f *fakeRegistryReader) MonitoredCount(context.Context) (uint64, error) {
	return f.count, nil
}

func (f *fakeRegistryReader) ContractInfo(context.Context, common.Address) (model.MonitoredContract, error) {
	return f.info, nil
}

func (f *fakeRegistryReader) MonitoredContractAt(context.Context, uint64) (model.MonitoredContract, error) {
	return f.info, nil
}

func (f *fakeRegistryReader) IsDormant(context.Context, common.Address) (bool, error) {
	return f.dormant, f.dormantErr
}

func (f *fakeRegistryReader) InactivityPeriod(context.Context) (uint64, error) {
	return f.period, nil
}

func TestRespondStatusIncludesChainIdentity(t *testing.T) {
	chainReader := &fakeChainReader{chainID: big.NewInt(11155111), height: 4242}
	r := NewResponder(chainReader, &fakeRegistryReader{count: 3}, nil, time.Second, nil)

	reply, ok := r.Respond(context.Background(), "status")
	if !ok {
		t.Fatalf("status not recognized")
	}
	for _, want := range []string{"Chain ID: 11155111", "Chain height: 4242", "Monitored contracts: 3"} {
		if !strings.Contains(reply, want) {
			t.Errorf("status reply missing %q:\n%s", want, reply)
		}
	}
}

func TestRespondInfoConsultsDormancyView(t *testing.T) {
	address := "0x00000000000000000000000000000000000000cd"
	chainReader := &fakeChainReader{balance: new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))}
	reg := &fakeRegistryReader{
		// Snapshot says active; the live isDormant view disagrees and wins.
		info:    model.MonitoredContract{Address: address, Active: true},
		dormant: true,
	}
	r := NewResponder(chainReader, reg, nil, time.Second, nil)

	reply, ok := r.Respond(context.Background(), "info "+address)
	if !ok {
		t.Fatalf("info not recognized")
	}
	if !strings.Contains(reply, "Status: dormant") {
		t.Fatalf("reply did not adopt the dormancy view:\n%s", reply)
	}
	if !strings.Contains(reply, "Balance: 2.000000 ETH as of ") {
		t.Fatalf("reply missing observed balance:\n%s", reply)
	}
}

func TestRespondInfoOmitsBalanceWhenLookupFails(t *testing.T) {
	address := "0x00000000000000000000000000000000000000ce"
	reg := &fakeRegistryReader{info: model.MonitoredContract{Address: address, Active: true}}
	r := NewResponder(&fakeChainReader{}, reg, nil, time.Second, nil)

	reply, ok := r.Respond(context.Background(), "info "+address)
	if !ok {
		t.Fatalf("info not recognized")
	}
	if strings.Contains(reply, "Balance:") {
		t.Fatalf("reply renders a balance it never observed:\n%s", reply)
	}
	if !strings.Contains(reply, "Status: active") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestRespondHelpListsCommands(t *testing.T) {
	r := detachedResponder()

	for _, command := range []string{"help", "/help", "start", "/start", "HELP"} {
		reply, ok := r.Respond(context.Background(), command)
		if !ok {
			t.Fatalf("%q not recognized", command)
		}
		for _, want := range []string{"status", "contracts", "info", "dormancy"} {
			if !strings.Contains(reply, want) {
				t.Errorf("%q: help text missing %q", command, want)
			}
		}
	}
}
