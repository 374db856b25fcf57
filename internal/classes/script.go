package classes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/localnerve/moka/internal/compiler"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/types"
)

// scriptMethod is a method whose body is JavaScript. The body is compiled on first
// use, so a syntax error only breaks that one method.
type scriptMethod struct {
	class  string
	name   string
	file   string
	source string

	once sync.Once
	prog *goja.Program
	err  error
}

func newScriptMethod(className string, m compiler.Method) *scriptMethod {
	return &scriptMethod{class: className, name: m.Name, file: m.File, source: m.Source}
}

// program compiles the body as the async function (request, response) => body,
// so every body may await whether or not it does asynchronous work.
// The programs are immutable and shared by every runtime that runs them.
func (m *scriptMethod) program() (*goja.Program, error) {
	m.once.Do(func() {
		src := "(async function (request, response) {\n" + m.source + "\n})"
		m.prog, m.err = goja.Compile(m.class+"/"+m.file, src, false)
	})
	return m.prog, m.err
}

// scriptHandler runs m in a fresh runtime per invocation. The returned promise is
// settled and its value sent when the body did not send anything itself.
func (c *Class) scriptHandler(m *scriptMethod) Handler {
	return func(ctx context.Context, req *Request, res *Response) error {
		prog, err := m.program()
		if err != nil {
			return types.NewMethodError(types.ErrMethodExecution, c.Name, m.name, err)
		}

		vm := goja.New()

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				vm.Interrupt(ctx.Err())
			case <-done:
			}
		}()

		env := &scriptEnv{ctx: ctx, vm: vm, class: c}
		env.install()

		fnValue, err := vm.RunProgram(prog)
		if err != nil {
			return types.NewMethodError(types.ErrMethodExecution, c.Name, m.name, err)
		}
		fn, ok := goja.AssertFunction(fnValue)
		if !ok {
			return types.NewMethodError(types.ErrMethodExecution, c.Name, m.name, errors.New("body did not compile to a function"))
		}

		ret, err := fn(env.instance(), env.request(req), env.response(res))
		if err != nil {
			return types.NewMethodError(types.ErrMethodExecution, c.Name, m.name, err)
		}

		value, err := settle(ret)
		if err != nil {
			return types.NewMethodError(types.ErrMethodExecution, c.Name, m.name, err)
		}

		if !res.Sent() && value != nil {
			return res.Send(value)
		}
		return nil
	}
}

// settle unwraps a returned promise. Jobs queued by the body have already run
// when the call returns, so a promise still pending here never settles.
func settle(v goja.Value) (interface{}, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}

	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v.Export(), nil
	}

	switch p.State() {
	case goja.PromiseStateRejected:
		return nil, rejection(p.Result())
	case goja.PromiseStatePending:
		return nil, errors.New("returned promise never settled")
	default:
		return settle(p.Result())
	}
}

func rejection(v goja.Value) error {
	if obj, ok := v.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return errors.New(stack.String())
		}
	}
	if v == nil {
		return errors.New("promise rejected")
	}
	return errors.New(v.String())
}

// scriptEnv exposes the class, the data store and the request collaborators to one runtime
type scriptEnv struct {
	ctx   context.Context
	vm    *goja.Runtime
	class *Class
}

func (e *scriptEnv) install() {
	console := e.vm.NewObject()
	console.Set("log", e.console(e.class.logger.Info))
	console.Set("info", e.console(e.class.logger.Info))
	console.Set("debug", e.console(e.class.logger.Debug))
	console.Set("warn", e.console(e.class.logger.Warn))
	console.Set("error", e.console(e.class.logger.Error))
	e.vm.Set("console", console)

	store := e.vm.NewObject()
	store.Set("find", func(className string, id goja.Value) goja.Value {
		return e.find(className, id)
	})
	store.Set("findAll", func(className string, where goja.Value) goja.Value {
		return e.findAll(className, where)
	})
	store.Set("related", func(className string, id goja.Value, field string) goja.Value {
		return e.related(className, id, field)
	})
	e.vm.Set("store", store)
}

func (e *scriptEnv) console(log func(args ...interface{})) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		log(strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// instance is the `this` of every method
func (e *scriptEnv) instance() goja.Value {
	obj := e.vm.NewObject()
	obj.Set("className", e.class.Name)
	obj.Set("getById", func(id goja.Value) goja.Value {
		return e.find(e.class.Name, id)
	})
	obj.Set("findAll", func(where goja.Value) goja.Value {
		return e.findAll(e.class.Name, where)
	})
	obj.Set("related", func(id goja.Value, field string) goja.Value {
		return e.related(e.class.Name, id, field)
	})
	return obj
}

func (e *scriptEnv) request(req *Request) goja.Value {
	obj := e.vm.NewObject()
	obj.Set("id", req.ID)
	obj.Set("method", req.Method)
	obj.Set("path", req.Path)
	obj.Set("ip", req.IP)
	obj.Set("body", string(req.Body))
	obj.Set("query", stringMap(req.Query))
	obj.Set("headers", stringMap(req.Headers))
	obj.Set("get", req.Header)
	return obj
}

func (e *scriptEnv) response(res *Response) goja.Value {
	obj := e.vm.NewObject()
	obj.Set("status", func(code int) *goja.Object {
		res.Status(code)
		return obj
	})
	obj.Set("set", func(name, value string) *goja.Object {
		res.Set(name, value)
		return obj
	})
	obj.Set("type", func(contentType string) *goja.Object {
		res.Set("Content-Type", contentType)
		return obj
	})
	obj.Set("get", res.Get)
	obj.Set("send", func(v goja.Value) *goja.Object {
		e.check(res.Send(export(v)))
		return obj
	})
	obj.Set("json", func(v goja.Value) *goja.Object {
		e.check(res.JSON(export(v)))
		return obj
	})
	obj.Set("sendStatus", func(code int) *goja.Object {
		res.SendStatus(code)
		return obj
	})
	obj.Set("end", func() *goja.Object {
		e.check(res.Send(nil))
		return obj
	})
	return obj
}

func (e *scriptEnv) find(className string, id goja.Value) goja.Value {
	rec, err := e.store().Find(e.ctx, className, export(id))
	e.check(err)
	return e.vm.ToValue(map[string]interface{}(rec))
}

func (e *scriptEnv) findAll(className string, where goja.Value) goja.Value {
	filter, _ := export(where).(map[string]interface{})
	recs, err := e.store().FindAll(e.ctx, className, filter)
	e.check(err)
	return e.vm.ToValue(records(recs))
}

func (e *scriptEnv) related(className string, id goja.Value, field string) goja.Value {
	v, err := e.store().FindRelated(e.ctx, className, export(id), field)
	e.check(err)
	switch r := v.(type) {
	case models.Record:
		return e.vm.ToValue(map[string]interface{}(r))
	case []models.Record:
		return e.vm.ToValue(records(r))
	}
	return e.vm.ToValue(v)
}

func (e *scriptEnv) store() Store {
	if e.class.store == nil {
		panic(e.vm.NewGoError(fmt.Errorf("class %s is not bound to a data store", e.class.Name)))
	}
	return e.class.store
}

// check throws err into the running script
func (e *scriptEnv) check(err error) {
	if err != nil {
		panic(e.vm.NewGoError(err))
	}
}

func export(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func stringMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func records(recs []models.Record) []interface{} {
	out := make([]interface{}, len(recs))
	for i, r := range recs {
		out[i] = map[string]interface{}(r)
	}
	return out
}
