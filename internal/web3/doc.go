// Package web3 defines the chain access surface used by the agent's wallet
// tools: balance reads, value transfers, contract deployment and calls, and
// receipt polling, plus the YAML chain catalog that names the configured
// networks.
package web3
