package browser

// Every script runs in the top document of the page. Windows are tracked
// in a registry on that document so identity survives cycles: the same
// WindowProxy always maps to the same index, even across origins.
const prelude = `
	const R = (() => {
		if (!window.__lmsbridge) {
			const wins = [window];
			window.__lmsbridge = {
				wins,
				idOf(w) {
					if (!w) return -1;
					let i = wins.indexOf(w);
					if (i < 0) { wins.push(w); i = wins.length - 1; }
					return i;
				},
			};
		}
		return window.__lmsbridge;
	})();
	const w = R.wins[n];
	if (!w) return {ok: false, gone: true};
	const denied = (e) => ({ok: false, denied: true, thrown: String(e && e.message || e)});
	const raised = (e) => (e && e.name === 'SecurityError') ? denied(e) : {ok: false, thrown: String(e && e.message || e)};
`

const locationScript = `(n) => {` + prelude + `
	try { return {ok: true, value: String(w.location.href)}; } catch (e) { return denied(e); }
}`

const parentScript = `(n) => {` + prelude + `
	try {
		const p = w.parent;
		if (!p || p === w) return {ok: true, value: -1};
		return {ok: true, value: R.idOf(p)};
	} catch (e) { return denied(e); }
}`

const openerScript = `(n) => {` + prelude + `
	try {
		const o = w.opener;
		if (!o || o === w) return {ok: true, value: -1};
		return {ok: true, value: R.idOf(o)};
	} catch (e) { return denied(e); }
}`

const framesScript = `(n) => {` + prelude + `
	try {
		const out = [];
		for (let i = 0; i < w.frames.length; i++) out.push(R.idOf(w.frames[i]));
		return {ok: true, value: out};
	} catch (e) { return denied(e); }
}`

// probeScript reads without calling anything except property getters.
const probeScript = `(n, path) => {` + prelude + `
	let v = w;
	try {
		for (const k of path) {
			if (v === null || v === undefined) { v = undefined; break; }
			v = v[k];
		}
	} catch (e) { return raised(e); }
	if (v === undefined || v === null) return {ok: true, value: {type: 'undefined'}};
	const t = typeof v;
	if (t === 'function') return {ok: true, value: {type: 'function'}};
	if (t === 'string' || t === 'number' || t === 'boolean') return {ok: true, value: {type: t, value: v}};
	const methods = new Set();
	try {
		for (let o = v; o && o !== Object.prototype && methods.size < 256; o = Object.getPrototypeOf(o)) {
			for (const k of Object.getOwnPropertyNames(o)) {
				if (k === 'constructor') continue;
				try { if (typeof v[k] === 'function') methods.add(k); } catch (e) {}
			}
		}
	} catch (e) {}
	return {ok: true, value: {type: 'object', methods: Array.from(methods)}};
}`

// invokeScript calls method on the object at path, or the function at
// path with its owner as receiver. Arguments shaped {__lmsbridgeCallback:
// id} become functions that report back through the exposed binding.
const invokeScript = `(n, path, method, args, binding) => {` + prelude + `
	const safe = (x) => {
		if (x === undefined || x === null) return null;
		const t = typeof x;
		if (t === 'string' || t === 'number' || t === 'boolean') return x;
		if (x instanceof Error) return {message: String(x.message)};
		try { return JSON.parse(JSON.stringify(x)); } catch (e) { return String(x); }
	};
	const revive = (v) => {
		if (v && typeof v === 'object') {
			if (typeof v.__lmsbridgeCallback === 'string') {
				const id = v.__lmsbridgeCallback;
				return (...a) => {
					try { window[binding]({id, args: a.map(safe)}); } catch (e) {}
				};
			}
			if (Array.isArray(v)) return v.map(revive);
			const o = {};
			for (const k of Object.keys(v)) o[k] = revive(v[k]);
			return o;
		}
		return v;
	};
	let target, fn;
	try {
		let owner = w, v = w;
		for (const k of path) {
			owner = v;
			v = (v === null || v === undefined) ? undefined : v[k];
		}
		if (method) { target = v; fn = (v === null || v === undefined) ? undefined : v[method]; }
		else { target = owner; fn = v; }
	} catch (e) { return denied(e); }
	if (typeof fn !== 'function') return {ok: false, thrown: (method || path.join('.')) + ' is not a function'};
	let ret;
	try { ret = fn.apply(target, args.map(revive)); }
	catch (e) { return {ok: false, thrown: String(e && e.message || e)}; }
	if (ret && typeof ret.then === 'function') {
		ret.then(() => {}, () => {});
		return {ok: true, value: null};
	}
	return {ok: true, value: safe(ret)};
}`
