// Package conversation 实现多模型轮流对话的调度循环。
//
// 每一轮按顺序询问全部端点，前一个端点的回答会写入共享上下文供后续端点参考；
// 回复中的 RUN-CODE 代码块交给执行器运行，json 代码块以格式化形式并入共享上下文。
// 单个端点的失败只会生成一条错误回复，不会中断整轮或整个请求。
package conversation
