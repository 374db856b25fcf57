// dispatcher.go
//
// A compile-on-change web application runtime
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of moka.
// moka is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// moka is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with moka.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/moka/internal/classes"
	"github.com/localnerve/moka/internal/metrics"
	"github.com/localnerve/moka/internal/middleware"
	"go.uber.org/zap"
)

// ClassLoader resolves a class by name
type ClassLoader interface {
	Load(ctx context.Context, className string) (*classes.Class, error)
}

// Dispatcher routes every request path to a method of the entry class
type Dispatcher struct {
	Loader        ClassLoader
	EntryClass    string
	DefaultMethod string
	Logger        *zap.SugaredLogger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(loader ClassLoader, entryClass, defaultMethod string, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		Loader:        loader,
		EntryClass:    entryClass,
		DefaultMethod: defaultMethod,
		Logger:        logger,
	}
}

// MethodName derives the method name from a request path: the path without its
// leading slash, or defaultMethod for the root path
func MethodName(path, defaultMethod string) string {
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		return defaultMethod
	}
	return name
}

// Handle invokes the method named by req's path on the entry class. Failures of any
// kind become a 500 plain-text response carrying the failure detail.
func (d *Dispatcher) Handle(ctx context.Context, req *classes.Request) *classes.Response {
	start := time.Now()
	method := MethodName(req.Path, d.DefaultMethod)
	res := classes.NewResponse()

	err := d.invoke(ctx, method, req, res)

	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		res.Fail(err)
		d.Logger.Errorw("Method failed", "class", d.EntryClass, "method", method, "requestID", req.ID, "error", err)
	}
	metrics.DispatchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	d.Logger.Infow("Dispatched",
		"class", d.EntryClass,
		"method", method,
		"status", res.StatusCode(),
		"elapsed", elapsed,
		"requestID", req.ID,
	)

	return res
}

func (d *Dispatcher) invoke(ctx context.Context, method string, req *classes.Request, res *classes.Response) error {
	class, err := d.Loader.Load(ctx, d.EntryClass)
	if err != nil {
		return err
	}
	return class.Invoke(ctx, method, req, res)
}

// Serve is the catch-all Fiber handler
func (d *Dispatcher) Serve(c *fiber.Ctx) error {
	res := d.Handle(c.UserContext(), newRequest(c))

	for name, value := range res.Headers() {
		c.Set(name, value)
	}
	return c.Status(res.StatusCode()).Send(res.Body())
}

// newRequest copies what a method may see out of the Fiber context
func newRequest(c *fiber.Ctx) *classes.Request {
	headers := make(map[string]string)
	for name, values := range c.GetReqHeaders() {
		headers[strings.Clone(name)] = strings.Clone(strings.Join(values, ", "))
	}

	query := make(map[string]string)
	for k, v := range c.Queries() {
		query[strings.Clone(k)] = strings.Clone(v)
	}

	return &classes.Request{
		ID:      middleware.GetRequestID(c),
		Method:  strings.Clone(c.Method()),
		Path:    strings.Clone(c.Path()),
		IP:      c.IP(),
		Query:   query,
		Headers: headers,
		Body:    append([]byte(nil), c.Body()...),
	}
}
