package runtime

import (
	"sync"

	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
	"github.com/vinayprograms/agentgrid/logging"
)

// catalog holds the live agent instances of one worker. Each entry owns a
// mailbox goroutine that executes deliveries one at a time, which is what
// gives agents their single-threaded view of the world.
type catalog struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[identity.AgentID]*mailbox
	messenger Messenger
	log       *logging.Logger
	size      int
	closed    bool
	wg        sync.WaitGroup
}

type mailbox struct {
	agent Agent
	jobs  chan func()
}

func newCatalog(m Messenger, size int, log *logging.Logger) *catalog {
	return &catalog{
		factories: make(map[string]Factory),
		instances: make(map[identity.AgentID]*mailbox),
		messenger: m,
		log:       log,
		size:      size,
	}
}

func (c *catalog) registerFactory(agentType string, f Factory) {
	c.mu.Lock()
	c.factories[agentType] = f
	c.mu.Unlock()
}

func (c *catalog) agentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]string, 0, len(c.factories))
	for t := range c.factories {
		types = append(types, t)
	}
	return types
}

// dispatch enqueues a job on the agent's mailbox, activating the instance
// first if this is its first delivery. The job receives the live agent and
// runs serialized with every other delivery to the same id.
//
// An activation failure is returned to the caller; it fails this one
// delivery and leaves no catalog entry behind, so the next message retries
// the factory.
func (c *catalog) dispatch(id identity.AgentID, job func(Agent)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeWorkerDraining, "worker draining",
			errors.WithAgentID(id.String()))
	}

	box, exists := c.instances[id]
	if !exists {
		factory, ok := c.factories[id.Type]
		if !ok {
			c.mu.Unlock()
			err := errors.ActivationFailed(id.String(),
				errors.Newf(errors.ErrCodeActivationFailed, "no factory for agent type %s", id.Type))
			c.log.Activation(id.String(), err)
			return err
		}

		agent, err := factory(id, c.messenger)
		if err != nil {
			c.mu.Unlock()
			wrapped := errors.ActivationFailed(id.String(), err)
			c.log.Activation(id.String(), wrapped)
			return wrapped
		}

		box = &mailbox{agent: agent, jobs: make(chan func(), c.size)}
		c.instances[id] = box
		c.wg.Add(1)
		go c.run(box)
		c.log.Activation(id.String(), nil)
	}
	c.mu.Unlock()

	box.jobs <- func() { job(box.agent) }
	return nil
}

// run executes deliveries until the nil job enqueued by close arrives.
// The channel itself is never closed, so a dispatch racing close cannot
// panic; its job is simply never drained.
func (c *catalog) run(box *mailbox) {
	defer c.wg.Done()
	for job := range box.jobs {
		if job == nil {
			return
		}
		job()
	}
}

// len returns the number of live instances.
func (c *catalog) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}

// close stops accepting deliveries, lets queued jobs finish and waits for
// every mailbox goroutine to exit.
func (c *catalog) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	boxes := make([]*mailbox, 0, len(c.instances))
	for _, box := range c.instances {
		boxes = append(boxes, box)
	}
	c.mu.Unlock()

	for _, box := range boxes {
		box.jobs <- nil
	}
	c.wg.Wait()
}
