package sandbox

import "strings"

// runtimePrelude is the JavaScript environment every component runs in. Chart
// components are inert host markers; createElement records the tree instead
// of rendering, which is enough to validate the component and hand the
// element tree to the frontend.
var runtimePrelude = buildPrelude()

func buildPrelude() string {
	var b strings.Builder

	b.WriteString(`'use strict';
var React = {
	Fragment: 'Fragment',
	createElement: function(type, props) {
		var children = [];
		for (var i = 2; i < arguments.length; i++) {
			var c = arguments[i];
			if (c === null || c === undefined || c === false) continue;
			if (Array.isArray(c)) {
				for (var j = 0; j < c.length; j++) {
					if (c[j] !== null && c[j] !== undefined && c[j] !== false) children.push(c[j]);
				}
				continue;
			}
			children.push(c);
		}
		var name;
		if (typeof type === 'string') {
			name = type;
		} else if (type && type.__host) {
			name = type.displayName;
		} else if (typeof type === 'function') {
			return type(Object.assign({}, props || {}, { children: children }));
		} else {
			name = 'Unknown';
		}
		return { __element: true, type: name, props: props || {}, children: children };
	},
	useState: function(initial) { return [initial, function() {}]; },
	useEffect: function() {},
	useMemo: function(fn) { return fn(); },
	useCallback: function(fn) { return fn; },
	useRef: function(initial) { return { current: initial }; },
	useContext: function() { return null; }
};
`)

	for _, hook := range ReactHooks {
		b.WriteString("var " + hook + " = React." + hook + ";\n")
	}
	for _, comp := range RechartsComponents {
		b.WriteString("var " + comp + " = { __host: true, displayName: '" + comp + "' };\n")
	}

	b.WriteString(`
function __render(props) {
	if (typeof __component !== 'function') {
		throw new Error('no default-exported component function found');
	}
	return __component(props || {});
}
`)
	return b.String()
}
