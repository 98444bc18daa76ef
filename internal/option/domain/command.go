package domain

// Command 可变更状态的命令。接口是封闭的，只有本包内的四种命令实现它。
type Command interface {
	Action() string
	isCommand()
}

// InstantiateCommand 创建期权，附带资金即抵押品
type InstantiateCommand struct {
	CounterOffer Coins  `json:"counter_offer"`
	Expires      uint64 `json:"expires"`
}

// TransferCommand 转让持有权
type TransferCommand struct {
	Recipient string `json:"recipient"`
}

// ExecuteCommand 行权
type ExecuteCommand struct{}

// BurnCommand 过期回收
type BurnCommand struct{}

const (
	ActionInstantiate = "instantiate"
	ActionTransfer    = "transfer"
	ActionExecute     = "execute"
	ActionBurn        = "burn"
)

func (InstantiateCommand) Action() string { return ActionInstantiate }
func (TransferCommand) Action() string    { return ActionTransfer }
func (ExecuteCommand) Action() string     { return ActionExecute }
func (BurnCommand) Action() string        { return ActionBurn }

func (InstantiateCommand) isCommand() {}
func (TransferCommand) isCommand()    {}
func (ExecuteCommand) isCommand()     {}
func (BurnCommand) isCommand()        {}

// BankSend 待宿主执行的转账指令
type BankSend struct {
	ToAddress Addr  `json:"to_address"`
	Amount    Coins `json:"amount"`
}

// Attribute 可观测属性
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response 命令成功后的输出
type Response struct {
	Messages   []BankSend  `json:"messages"`
	Attributes []Attribute `json:"attributes"`
}

// Attr 查找属性值
func (r Response) Attr(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func (r *Response) addMessage(to Addr, amount Coins) {
	r.Messages = append(r.Messages, BankSend{ToAddress: to, Amount: amount.Clone()})
}

func (r *Response) addAttribute(key, value string) {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
}

// Transition 一次命令产生的完整效果：新记录（Deleted 时为 nil）与输出。
type Transition struct {
	Next     *Option
	Deleted  bool
	Response Response
}
