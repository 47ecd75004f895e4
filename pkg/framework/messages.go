package framework

// messageQueue is a singly linked FIFO of messages.
type messageQueue struct {
	head *messageNode
	tail *messageNode
}

type messageNode struct {
	msg  Message
	next *messageNode
}

func (q *messageQueue) push(msg Message) {
	q.pushNode(&messageNode{msg: msg})
}

func (q *messageQueue) pushNode(n *messageNode) {
	n.next = nil
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
}

func (q *messageQueue) pop() *messageNode {
	n := q.head
	if n == nil {
		return nil
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	n.next = nil
	return n
}

// takeAll moves all messages of src into q, replacing q.
func (q *messageQueue) takeAll(src *messageQueue) {
	*q, *src = *src, messageQueue{}
}

// appendAll moves all messages of src to the end of q.
func (q *messageQueue) appendAll(src *messageQueue) {
	if src.head == nil {
		return
	}
	if q.tail == nil {
		q.head = src.head
	} else {
		q.tail.next = src.head
	}
	q.tail = src.tail
	*src = messageQueue{}
}

// messageCursor implements MessageProcessingContext.
type messageCursor struct {
	it    *iteration
	node  *messageNode
	taken bool
	stop  bool
}

func (c *messageCursor) CurrentMessage() Message     { return c.node.msg }
func (c *messageCursor) MessageTaken()               { c.taken = true }
func (c *messageCursor) StopProcessing()             { c.stop = true }
func (c *messageCursor) AddMessages(msgs ...Message) { c.it.AddMessages(msgs...) }

// ProcessMessages implements MessageStore. Messages not taken stay in the
// store in order, followed by messages added during processing.
func (it *iteration) ProcessMessages(proc MessageProcessor) {
	var todo, kept messageQueue
	todo.takeAll(&it.messages)
	for n := todo.pop(); n != nil; n = todo.pop() {
		cur := &messageCursor{it: it, node: n}
		proc.ProcessMessage(cur)
		if !cur.taken {
			kept.pushNode(n)
		}
		if cur.stop {
			kept.appendAll(&todo)
			break
		}
	}
	kept.appendAll(&it.messages)
	it.messages = kept
}

// AddMessages implements MessageAppender.
func (it *iteration) AddMessages(msgs ...Message) {
	for _, msg := range msgs {
		it.messages.push(msg)
	}
}
