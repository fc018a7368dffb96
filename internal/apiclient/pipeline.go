// apiclient — HTTP-клиент удалённого API с явным пайплайном перехватчиков.
//
// Пайплайн — цепочка pre/post-хуков вокруг отправки запроса. Порядок вызова
// совпадает с порядком регистрации: первый зарегистрированный — внешний.
// Так тихое обновление токенов (RefreshRetry) тестируется без конкретного
// транспорта: достаточно подставить свой Invoker.
package apiclient

import (
	"net/http"
	"sync"
)

// Invoker отправляет запрос дальше по цепочке.
type Invoker func(req *http.Request) (*http.Response, error)

// Interceptor оборачивает вызов: может поменять запрос, вызвать next
// ноль/один/несколько раз и поменять ответ.
type Interceptor func(req *http.Request, next Invoker) (*http.Response, error)

type namedInterceptor struct {
	name string
	fn   Interceptor
}

// Pipeline — упорядоченный набор перехватчиков и конечный транспорт.
// Безопасен для конкурентного использования: запросы идут параллельно,
// установка перехватчиков сериализуется.
type Pipeline struct {
	mu        sync.RWMutex
	chain     []namedInterceptor
	transport Invoker
}

// NewPipeline создаёт пайплайн поверх транспорта. nil — http.DefaultClient.Do.
func NewPipeline(transport Invoker) *Pipeline {
	if transport == nil {
		transport = http.DefaultClient.Do
	}

	return &Pipeline{transport: transport}
}

// Use добавляет перехватчик в конец цепочки. Повторная установка под тем же
// именем — no-op; возвращает true только при фактической установке.
func (p *Pipeline) Use(name string, ic Interceptor) bool {
	if ic == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, n := range p.chain {
		if n.name == name {
			return false
		}
	}

	p.chain = append(p.chain, namedInterceptor{name: name, fn: ic})
	return true
}

// UseOnce — как Use, но перехватчик строится только если имя ещё свободно.
func (p *Pipeline) UseOnce(name string, build func() Interceptor) bool {
	if p.Installed(name) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, n := range p.chain {
		if n.name == name {
			return false
		}
	}

	ic := build()
	if ic == nil {
		return false
	}

	p.chain = append(p.chain, namedInterceptor{name: name, fn: ic})
	return true
}

// Installed — установлен ли перехватчик с таким именем.
func (p *Pipeline) Installed(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, n := range p.chain {
		if n.name == name {
			return true
		}
	}

	return false
}

// Names — имена перехватчиков в порядке вызова.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.chain))
	for _, n := range p.chain {
		out = append(out, n.name)
	}

	return out
}

// Do прогоняет запрос через цепочку и транспорт.
func (p *Pipeline) Do(req *http.Request) (*http.Response, error) {
	p.mu.RLock()
	chain := make([]namedInterceptor, len(p.chain))
	copy(chain, p.chain)
	p.mu.RUnlock()

	next := p.transport
	for i := len(chain) - 1; i >= 0; i-- {
		ic, inner := chain[i].fn, next
		next = func(r *http.Request) (*http.Response, error) {
			return ic(r, inner)
		}
	}

	return next(req)
}
