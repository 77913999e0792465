package workerpool

import "encoding/json"

// 与隔离进程之间的行协议：stdin一行请求，stdout一行应答
// 进程就绪后先输出一行readyLine，之后才接受请求

type workerRequest struct {
	CallID  uint64          `json:"call_id"`
	Payload json.RawMessage `json:"payload"`
}

type workerResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type readySignal struct {
	Ready bool `json:"ready"`
}
