package cgen

// ============================================================================
// 运行时头文件
// ============================================================================
//
// 生成的 C 代码统一依赖这份小型运行时：引用计数对象头、字符串、
// 数组、字符串构造缓冲与运行时类型信息。全部声明为 static inline，
// 使单个翻译单元即可独立编译。
//
// 所有权约定：amrt_alloc 与一切返回托管指针的函数交付 rc=1 的
// 所有权；生成器把这类结果放进局部临时变量并在作用域出口释放；
// 借入值在存储进局部变量、字段或数组槽位时 retain，覆盖旧值时
// 先 retain 新值再 release 旧值。retain 与 release 都接受 NULL。

const runtimeHeader = `#ifndef AMRT_H
#define AMRT_H

#include <stdbool.h>
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>

/* ---- runtime type info ---- */

typedef struct amrt_type {
    const char* name;
    const struct amrt_type* super;
} amrt_type;

/* ---- object header ---- */

typedef struct amrt_header {
    int32_t rc;
    void (*dtor)(void* self);
    const amrt_type* type;
} amrt_header;

static inline void* amrt_alloc(size_t size, void (*dtor)(void*), const amrt_type* type) {
    amrt_header* h = (amrt_header*)calloc(1, size);
    h->rc = 1;
    h->dtor = dtor;
    h->type = type;
    return h;
}

static inline void amrt_retain(void* obj) {
    if (obj != NULL) {
        ((amrt_header*)obj)->rc++;
    }
}

static inline void amrt_release(void* obj) {
    if (obj == NULL) {
        return;
    }
    amrt_header* h = (amrt_header*)obj;
    if (--h->rc == 0) {
        if (h->dtor != NULL) {
            h->dtor(obj);
        } else {
            free(obj);
        }
    }
}

static inline bool amrt_isa(void* obj, const amrt_type* want) {
    if (obj == NULL) {
        return false;
    }
    const amrt_type* t = ((amrt_header*)obj)->type;
    for (; t != NULL; t = t->super) {
        if (t == want) {
            return true;
        }
    }
    return false;
}

static inline void* amrt_cast(void* obj, const amrt_type* want) {
    if (obj == NULL || amrt_isa(obj, want)) {
        return obj;
    }
    fprintf(stderr, "amrt: invalid cast to %s\n", want->name);
    abort();
}

static inline bool amrt_obj_eq(void* a, void* b) {
    return a == b;
}

/* ---- strings (refcounted, immutable, utf-8 bytes) ---- */

typedef struct amrt_string {
    amrt_header hdr;
    int32_t len;
    char data[];
} amrt_string;

static inline amrt_string* amrt_str_new(const char* bytes, int32_t len) {
    amrt_string* s = (amrt_string*)amrt_alloc(sizeof(amrt_string) + (size_t)len + 1, NULL, NULL);
    s->len = len;
    memcpy(s->data, bytes, (size_t)len);
    s->data[len] = 0;
    return s;
}

/* string literals: rc pinned high so scope releases never free them */
static inline amrt_string* amrt_lit(const char* bytes) {
    amrt_string* s = amrt_str_new(bytes, (int32_t)strlen(bytes));
    s->hdr.rc = INT32_MAX / 2;
    return s;
}

static inline int32_t amrt_str_len(amrt_string* s) {
    return s->len;
}

/* indexing is by UTF-8 byte, not by code point; returns the raw byte */
static inline uint16_t amrt_str_at(amrt_string* s, int32_t i) {
    return (uint16_t)(unsigned char)s->data[i];
}

static inline bool amrt_str_eq(amrt_string* a, amrt_string* b) {
    if (a == b) {
        return true;
    }
    if (a == NULL || b == NULL || a->len != b->len) {
        return false;
    }
    return memcmp(a->data, b->data, (size_t)a->len) == 0;
}

static inline amrt_string* amrt_str_concat(amrt_string* a, amrt_string* b) {
    amrt_string* s = (amrt_string*)amrt_alloc(sizeof(amrt_string) + (size_t)a->len + (size_t)b->len + 1, NULL, NULL);
    s->len = a->len + b->len;
    memcpy(s->data, a->data, (size_t)a->len);
    memcpy(s->data + a->len, b->data, (size_t)b->len);
    s->data[s->len] = 0;
    return s;
}

/* ---- arrays ---- */

typedef struct amrt_array {
    amrt_header hdr;
    int32_t len;
    int32_t elem_size;
    bool elem_ref;
    void* data;
} amrt_array;

static inline void amrt_array_dtor(void* self) {
    amrt_array* a = (amrt_array*)self;
    if (a->elem_ref) {
        for (int32_t i = 0; i < a->len; i++) {
            amrt_release(((void**)a->data)[i]);
        }
    }
    free(a->data);
    free(a);
}

static inline amrt_array* amrt_array_new(int32_t elem_size, int32_t len, bool elem_ref) {
    amrt_array* a = (amrt_array*)amrt_alloc(sizeof(amrt_array), amrt_array_dtor, NULL);
    a->len = len;
    a->elem_size = elem_size;
    a->elem_ref = elem_ref;
    a->data = calloc((size_t)len, (size_t)elem_size);
    return a;
}

static inline int32_t amrt_array_len(amrt_array* a) {
    return a->len;
}

/* ---- string builder (for interpolation lowering) ---- */

typedef struct amrt_sb {
    char* buf;
    int32_t len;
    int32_t cap;
} amrt_sb;

static inline void amrt_sb_init(amrt_sb* sb) {
    sb->cap = 32;
    sb->len = 0;
    sb->buf = (char*)malloc((size_t)sb->cap);
}

static inline void amrt_sb_grow(amrt_sb* sb, int32_t need) {
    while (sb->len + need > sb->cap) {
        sb->cap *= 2;
    }
    sb->buf = (char*)realloc(sb->buf, (size_t)sb->cap);
}

static inline void amrt_sb_bytes(amrt_sb* sb, const char* bytes, int32_t len) {
    amrt_sb_grow(sb, len);
    memcpy(sb->buf + sb->len, bytes, (size_t)len);
    sb->len += len;
}

static inline void amrt_sb_cstr(amrt_sb* sb, const char* s) {
    amrt_sb_bytes(sb, s, (int32_t)strlen(s));
}

static inline void amrt_sb_str(amrt_sb* sb, amrt_string* s) {
    if (s == NULL) {
        amrt_sb_cstr(sb, "null");
    } else {
        amrt_sb_bytes(sb, s->data, s->len);
    }
}

static inline void amrt_sb_int(amrt_sb* sb, int64_t v) {
    char tmp[24];
    snprintf(tmp, sizeof(tmp), "%lld", (long long)v);
    amrt_sb_cstr(sb, tmp);
}

static inline void amrt_sb_double(amrt_sb* sb, double v) {
    char tmp[40];
    snprintf(tmp, sizeof(tmp), "%g", v);
    amrt_sb_cstr(sb, tmp);
}

static inline void amrt_sb_bool(amrt_sb* sb, bool v) {
    amrt_sb_cstr(sb, v ? "true" : "false");
}

/* a char is a UTF-16 code unit; encode it as UTF-8 (1-3 bytes) on append */
static inline void amrt_sb_char(amrt_sb* sb, uint16_t v) {
    char tmp[3];
    int32_t n;
    if (v < 0x80) {
        tmp[0] = (char)v;
        n = 1;
    } else if (v < 0x800) {
        tmp[0] = (char)(0xC0 | (v >> 6));
        tmp[1] = (char)(0x80 | (v & 0x3F));
        n = 2;
    } else {
        tmp[0] = (char)(0xE0 | (v >> 12));
        tmp[1] = (char)(0x80 | ((v >> 6) & 0x3F));
        tmp[2] = (char)(0x80 | (v & 0x3F));
        n = 3;
    }
    amrt_sb_bytes(sb, tmp, n);
}

static inline void amrt_sb_obj(amrt_sb* sb, void* obj) {
    if (obj == NULL) {
        amrt_sb_cstr(sb, "null");
        return;
    }
    const amrt_type* t = ((amrt_header*)obj)->type;
    amrt_sb_cstr(sb, t != NULL ? t->name : "object");
    char tmp[24];
    snprintf(tmp, sizeof(tmp), "@%p", obj);
    amrt_sb_cstr(sb, tmp);
}

static inline amrt_string* amrt_sb_build(amrt_sb* sb) {
    amrt_string* s = amrt_str_new(sb->buf, sb->len);
    free(sb->buf);
    sb->buf = NULL;
    sb->len = 0;
    sb->cap = 0;
    return s;
}

/* ---- exceptions: minimal abort semantics ---- */

static inline void amrt_throw(void* exception) {
    amrt_header* h = (amrt_header*)exception;
    const char* name = (h != NULL && h->type != NULL) ? h->type->name : "object";
    fprintf(stderr, "amrt: uncaught %s\n", name);
    abort();
}

/* ---- nullable primitives ---- */

typedef struct { bool has; bool v; } amrt_opt_bool;
typedef struct { bool has; uint16_t v; } amrt_opt_char;
typedef struct { bool has; int32_t v; } amrt_opt_int;
typedef struct { bool has; int64_t v; } amrt_opt_long;
typedef struct { bool has; float v; } amrt_opt_float;
typedef struct { bool has; double v; } amrt_opt_double;

#define AMRT_SOME(tag, value) ((amrt_opt_##tag){ true, (value) })
#define AMRT_NONE(tag) ((amrt_opt_##tag){ false, 0 })

/* ---- test registry ---- */

typedef struct amrt_test {
    const char* name;
    void (*fn)(void);
} amrt_test;

#endif /* AMRT_H */
`
