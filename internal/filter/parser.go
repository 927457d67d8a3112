package filter

import "time"

type parser struct {
	toks []token
	pos  int
}

func parse(src string, loc *time.Location) (node, error) {
	toks, err := tokenize(src, loc)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, syntaxErr(0, "empty filter")
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, syntaxErr(t.pos, "unexpected %q", t.String())
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kinds ...tokenKind) (token, bool) {
	t := p.peek()
	for _, k := range kinds {
		if t.kind == k {
			p.pos++
			return t, true
		}
	}
	return t, false
}

func (p *parser) parseOr() (node, error) {
	return p.leftAssoc(p.parseAnd, tokOr)
}

func (p *parser) parseAnd() (node, error) {
	return p.leftAssoc(p.parseEquality, tokAnd)
}

func (p *parser) parseEquality() (node, error) {
	return p.leftAssoc(p.parseRelational, tokEq, tokNe)
}

func (p *parser) parseRelational() (node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := p.accept(tokGt, tokLt, tokGe, tokLe)
	if !ok {
		return l, nil
	}
	r, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if t, chained := p.accept(tokGt, tokLt, tokGe, tokLe); chained {
		return nil, syntaxErr(t.pos, "comparison operators cannot be chained")
	}
	return &binary{op: op.kind, pos: op.pos, l: l, r: r}, nil
}

func (p *parser) parseAdditive() (node, error) {
	return p.leftAssoc(p.parseMultiplicative, tokPlus, tokMinus)
}

func (p *parser) parseMultiplicative() (node, error) {
	return p.leftAssoc(p.parseUnary, tokStar, tokSlash)
}

func (p *parser) leftAssoc(operand func() (node, error), ops ...tokenKind) (node, error) {
	l, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept(ops...)
		if !ok {
			return l, nil
		}
		r, err := operand()
		if err != nil {
			return nil, err
		}
		l = &binary{op: op.kind, pos: op.pos, l: l, r: r}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.accept(tokMinus); ok {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negate{pos: op.pos, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokLiteral:
		return &literal{v: t.val}, nil
	case tokIdent:
		return &ident{name: t.text, pos: t.pos}, nil
	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c, ok := p.accept(tokRParen); !ok {
			return nil, syntaxErr(c.pos, "expected ')' but found %q", c.String())
		}
		return &group{x: x}, nil
	case tokEOF:
		return nil, syntaxErr(t.pos, "unexpected end of input")
	}
	return nil, syntaxErr(t.pos, "unexpected %q", t.String())
}
