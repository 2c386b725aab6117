package registry

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const registryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "contractAddress", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "previousBalance", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "currentBalance", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "dormantSince", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"}
    ],
    "name": "ContractActivated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "contractAddress", "type": "address"}
    ],
    "name": "ContractAdded",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "contractAddress", "type": "address"}
    ],
    "name": "ContractRemoved",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "operator", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "channelId", "type": "uint256"}
    ],
    "name": "ConfigChanged",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "_contractAddress", "type": "address"}
    ],
    "name": "getContractInfo",
    "outputs": [
      {"internalType": "address", "name": "contractAddress", "type": "address"},
      {"internalType": "bool", "name": "isActive", "type": "bool"},
      {"internalType": "uint256", "name": "lastActivityTime", "type": "uint256"},
      {"internalType": "uint256", "name": "addedTime", "type": "uint256"},
      {"internalType": "bool", "name": "dormant", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getMonitoredContractsCount",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "name": "monitoredContracts",
    "outputs": [
      {"internalType": "address", "name": "contractAddress", "type": "address"},
      {"internalType": "bool", "name": "isActive", "type": "bool"},
      {"internalType": "uint256", "name": "lastActivityTime", "type": "uint256"},
      {"internalType": "uint256", "name": "addedTime", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "_contractAddress", "type": "address"}],
    "name": "isDormant",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "inactivityPeriod",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	registryABI     abi.ABI
	registryABIOnce sync.Once
	registryABIErr  error
)

// ABI returns the parsed dormancy-registry ABI.
func ABI() (abi.ABI, error) {
	registryABIOnce.Do(func() {
		registryABI, registryABIErr = abi.JSON(strings.NewReader(registryABIJSON))
	})
	return registryABI, registryABIErr
}

// EventNames lists the registry events the monitor subscribes to.
func EventNames() []string {
	return []string{"ContractActivated", "ContractAdded", "ContractRemoved", "ConfigChanged"}
}
