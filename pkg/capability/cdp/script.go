package cdp

// bootstrapJS installs the in-page helper object backing element handles.
// Nodes are registered in a WeakMap so the same node always yields the same
// handle id, and the registry dies with the document, matching handle
// validity to document lifetime.
const bootstrapJS = `(() => {
    if (window.__replay) { return; }

    const reg = { seq: 0, byId: new Map(), ids: new WeakMap() };
    const transfers = new Map();

    function handle(el) {
        let id = reg.ids.get(el);
        if (id === undefined) {
            id = 'n' + (++reg.seq);
            reg.ids.set(el, id);
            reg.byId.set(id, new WeakRef(el));
        }
        return id;
    }

    function get(id) {
        const ref = reg.byId.get(id);
        const el = ref && ref.deref();
        if (!el || !el.isConnected) { throw new Error('stale element handle: ' + id); }
        return el;
    }

    function visible(el) {
        for (let e = el; e; e = e.parentElement) {
            const cs = getComputedStyle(e);
            if (cs.display === 'none' || cs.visibility === 'hidden') { return false; }
        }
        const r = el.getBoundingClientRect();
        return r.width > 0 && r.height > 0;
    }

    const implicitRoles = {
        'button': 'button', 'a': 'link', 'select': 'combobox',
        'textarea': 'textbox', 'input': 'textbox', 'img': 'img',
        'nav': 'navigation', 'main': 'main', 'form': 'form',
    };

    function role(el) {
        const explicit = el.getAttribute('role');
        if (explicit) { return explicit.trim(); }
        const tag = el.tagName.toLowerCase();
        if (tag === 'input') {
            const t = (el.getAttribute('type') || 'text').toLowerCase();
            if (t === 'checkbox' || t === 'radio') { return t; }
            if (t === 'button' || t === 'submit' || t === 'reset') { return 'button'; }
            if (t === 'hidden') { return ''; }
            return 'textbox';
        }
        if (tag === 'a' && !el.hasAttribute('href')) { return ''; }
        return implicitRoles[tag] || '';
    }

    function ownText(el) {
        return (el.innerText || '').trim();
    }

    function accName(el) {
        const label = el.getAttribute('aria-label');
        if (label && label.trim()) { return label.trim(); }
        const byId = el.getAttribute('aria-labelledby');
        if (byId) {
            const parts = byId.split(/\s+/)
                .map(id => { const t = document.getElementById(id); return t ? ownText(t) : ''; })
                .filter(Boolean);
            if (parts.length) { return parts.join(' '); }
        }
        const text = ownText(el);
        if (text) { return text; }
        return (el.getAttribute('title') || '').trim();
    }

    function hostSelector(host) {
        if (host.id) { return '#' + host.id; }
        return host.tagName.toLowerCase();
    }

    function shadowHosts(el) {
        const hosts = [];
        for (let root = el.getRootNode(); root instanceof ShadowRoot; root = root.host.getRootNode()) {
            hosts.unshift(hostSelector(root.host));
        }
        return hosts;
    }

    function pierce(hostChain) {
        let scope = document;
        for (const sel of hostChain) {
            const host = scope.querySelector(sel);
            if (!host || !host.shadowRoot) { return null; }
            scope = host.shadowRoot;
        }
        return scope;
    }

    // Collects elements whose visible text equals the needle, keeping only
    // the deepest match of each matching chain.
    function queryText(text) {
        const out = [];
        const walk = (root) => {
            for (const el of root.querySelectorAll('*')) {
                if (ownText(el) === text) {
                    let deepest = true;
                    for (const child of el.children) {
                        if (ownText(child) === text) { deepest = false; break; }
                    }
                    if (deepest) { out.push(el); }
                }
                if (el.shadowRoot) { walk(el.shadowRoot); }
            }
        };
        walk(document);
        return out.map(handle);
    }

    function queryRole(wantRole, wantName) {
        const out = [];
        const walk = (root) => {
            for (const el of root.querySelectorAll('*')) {
                if (role(el) === wantRole && accName(el) === wantName) { out.push(el); }
                if (el.shadowRoot) { walk(el.shadowRoot); }
            }
        };
        walk(document);
        return out.map(handle);
    }

    function transferFor(id) {
        let dt = transfers.get(id);
        if (!dt) { dt = new DataTransfer(); transfers.set(id, dt); }
        return dt;
    }

    function dispatch(el, ev) {
        const opts = { bubbles: true, cancelable: true, composed: true };
        let event;
        if (/^(mouse|click|dblclick|context)/.test(ev.type) || ev.type === 'click' || ev.type === 'dblclick') {
            event = new MouseEvent(ev.type, Object.assign(opts, {
                clientX: ev.clientX, clientY: ev.clientY, view: window,
            }));
        } else if (/^key/.test(ev.type)) {
            event = new KeyboardEvent(ev.type, Object.assign(opts, { key: ev.key }));
        } else if (/^drag|^drop/.test(ev.type)) {
            event = new DragEvent(ev.type, Object.assign(opts, {
                clientX: ev.clientX, clientY: ev.clientY,
                dataTransfer: transferFor(ev.transferId),
            }));
            if (ev.type === 'dragend' || ev.type === 'drop') {
                setTimeout(() => transfers.delete(ev.transferId), 0);
            }
        } else if (ev.type === 'submit') {
            if (typeof el.requestSubmit === 'function') { el.requestSubmit(); return; }
            event = new Event('submit', opts);
        } else {
            event = new Event(ev.type, opts);
        }
        el.dispatchEvent(event);
    }

    window.__replay = {
        handle, get, visible, role, ownText, accName, shadowHosts, dispatch,

        query: (sel) => Array.from(document.querySelectorAll(sel)).map(handle),
        queryText,
        queryRole,
        queryShadow: (hosts, sel) => {
            const scope = pierce(hosts);
            return scope ? Array.from(scope.querySelectorAll(sel)).map(handle) : [];
        },

        tagName: (id) => get(id).tagName.toLowerCase(),
        attr: (id, name) => {
            const v = get(id).getAttribute(name);
            return v === null ? { ok: false, value: '' } : { ok: true, value: v };
        },
        ownTextOf: (id) => ownText(get(id)),
        roleOf: (id) => role(get(id)),
        accNameOf: (id) => accName(get(id)),
        box: (id) => {
            const r = get(id).getBoundingClientRect();
            return { x: r.x, y: r.y, width: r.width, height: r.height };
        },
        visibleOf: (id) => visible(get(id)),
        enabledOf: (id) => {
            const el = get(id);
            return !el.disabled && !el.closest('fieldset[disabled]') &&
                el.getAttribute('aria-disabled') !== 'true';
        },
        parentOf: (id) => {
            const p = get(id).parentElement;
            return p ? handle(p) : '';
        },
        typeIndex: (id) => {
            const el = get(id);
            let n = 1;
            for (let s = el.previousElementSibling; s; s = s.previousElementSibling) {
                if (s.tagName === el.tagName) { n++; }
            }
            return n;
        },
        shadowHostsOf: (id) => shadowHosts(get(id)),
        focus: (id) => { get(id).focus(); },
        scrollIntoView: (id) => {
            get(id).scrollIntoView({ block: 'center', inline: 'center', behavior: 'instant' });
        },
        valueOf: (id) => {
            const el = get(id);
            return 'value' in el ? String(el.value) : ownText(el);
        },
        setValue: (id, v) => {
            const el = get(id);
            if ('value' in el) { el.value = v; } else { el.textContent = v; }
        },
        optionsOf: (id) => Array.from(get(id).options || [])
            .map(o => ({ value: o.value, text: (o.textContent || '').trim() })),
        formOwnerOf: (id) => {
            const el = get(id);
            const form = el.form || el.closest('form');
            return form ? handle(form) : '';
        },
        dispatchAt: (id, ev) => { dispatch(get(id), ev); },
        highlight: (id) => {
            const el = get(id);
            const prev = el.style.outline;
            el.style.outline = '2px solid #e8710a';
            setTimeout(() => { el.style.outline = prev; }, 600);
        },
    };
})();`

// domSettledJS resolves once no DOM mutations have been observed for the
// quiet window, or rejects the budget by resolving false at the deadline.
const domSettledJS = `new Promise((resolve) => {
    const quietMs = 300;
    let timer = setTimeout(done, quietMs);
    const obs = new MutationObserver(() => {
        clearTimeout(timer);
        timer = setTimeout(done, quietMs);
    });
    obs.observe(document.documentElement, { childList: true, subtree: true, attributes: true });
    function done() { obs.disconnect(); resolve(true); }
})`

// framesSettledJS waits two animation frames so layout from the previous
// action has been committed.
const framesSettledJS = `new Promise((resolve) => {
    requestAnimationFrame(() => requestAnimationFrame(() => resolve(true)));
})`
