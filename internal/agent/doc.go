// Package agent 定义 Based Agent：系统提示词以及绑定到代理钱包的链上工具，
// 包括余额查询、转账、代币与 NFT 合约部署、NFT 铸造、水龙头领取和链信息查询。
package agent
