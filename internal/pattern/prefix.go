package pattern

import "regexp/syntax"

// prefixOf строит выражение, язык которого составляют все префиксы строк языка re.
//
//	P(AB)  = P(A) | A P(B)
//	P(A|B) = P(A) | P(B)
//	P(A*)  = A* P(A)
//	P(x)   = ε | x
func prefixOf(re *syntax.Regexp) *syntax.Regexp {
	return prefix(stripCaptures(re))
}

func prefix(re *syntax.Regexp) *syntax.Regexp {
	switch re.Op {
	case syntax.OpNoMatch:
		return re
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpBeginText:
		return re
	case syntax.OpEndLine, syntax.OpEndText, syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return empty()
	case syntax.OpLiteral:
		if len(re.Rune) == 0 {
			return empty()
		}
		p := quest(lit(re.Rune[len(re.Rune)-1:], re.Flags))
		for i := len(re.Rune) - 2; i >= 0; i-- {
			p = quest(concat(lit(re.Rune[i:i+1], re.Flags), p))
		}
		return p
	case syntax.OpCharClass, syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		return quest(re)
	case syntax.OpStar, syntax.OpPlus:
		return concat(star(re.Sub[0]), prefix(re.Sub[0]))
	case syntax.OpQuest:
		return prefix(re.Sub[0])
	case syntax.OpRepeat:
		switch {
		case re.Max == -1:
			return concat(star(re.Sub[0]), prefix(re.Sub[0]))
		case re.Max == 0:
			return empty()
		case re.Max == 1:
			return prefix(re.Sub[0])
		}
		rep := &syntax.Regexp{Op: syntax.OpRepeat, Min: 0, Max: re.Max - 1, Sub: []*syntax.Regexp{re.Sub[0]}}
		return concat(rep, prefix(re.Sub[0]))
	case syntax.OpConcat:
		n := len(re.Sub)
		if n == 0 {
			return empty()
		}
		p := prefix(re.Sub[n-1])
		for i := n - 2; i >= 0; i-- {
			p = alt(prefix(re.Sub[i]), concat(re.Sub[i], p))
		}
		return p
	case syntax.OpAlternate:
		subs := make([]*syntax.Regexp, len(re.Sub))
		for i, s := range re.Sub {
			subs[i] = prefix(s)
		}
		return &syntax.Regexp{Op: syntax.OpAlternate, Sub: subs}
	}
	return empty()
}

func stripCaptures(re *syntax.Regexp) *syntax.Regexp {
	if re.Op == syntax.OpCapture {
		return stripCaptures(re.Sub[0])
	}
	if len(re.Sub) == 0 {
		return re
	}
	cp := *re
	cp.Sub = make([]*syntax.Regexp, len(re.Sub))
	for i, s := range re.Sub {
		cp.Sub[i] = stripCaptures(s)
	}
	return &cp
}

func empty() *syntax.Regexp { return &syntax.Regexp{Op: syntax.OpEmptyMatch} }

func lit(r []rune, flags syntax.Flags) *syntax.Regexp {
	return &syntax.Regexp{Op: syntax.OpLiteral, Rune: append([]rune(nil), r...), Flags: flags & syntax.FoldCase}
}

func quest(re *syntax.Regexp) *syntax.Regexp {
	return &syntax.Regexp{Op: syntax.OpQuest, Sub: []*syntax.Regexp{re}}
}

func star(re *syntax.Regexp) *syntax.Regexp {
	return &syntax.Regexp{Op: syntax.OpStar, Sub: []*syntax.Regexp{re}}
}

func concat(a, b *syntax.Regexp) *syntax.Regexp {
	return &syntax.Regexp{Op: syntax.OpConcat, Sub: []*syntax.Regexp{a, b}}
}

func alt(a, b *syntax.Regexp) *syntax.Regexp {
	return &syntax.Regexp{Op: syntax.OpAlternate, Sub: []*syntax.Regexp{a, b}}
}
