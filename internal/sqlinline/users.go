package sqlinline

const QSelectUserByID = `--sql 0bbe2157-c95c-4c57-a618-5722a7a55755
select id::text, email, coalesce(name, ''), subscription_status, created_at, updated_at
from users
where id = $1::uuid
limit 1;
`

const QSelectUserByEmail = `--sql e483ff8d-4f11-405f-ae15-9daaf4a4aaf6
select id::text, email, coalesce(name, ''), subscription_status, created_at, updated_at
from users
where lower(email) = lower($1)
limit 1;
`

const QUpdateUserSubscription = `--sql e173ccbe-810c-4db1-b521-a1c2d8dd9e24
update users
set subscription_status = $2, updated_at = now()
where id = $1::uuid
returning id::text, email, coalesce(name, ''), subscription_status, created_at, updated_at;
`

const QPing = `--sql d4da4d84-4970-4053-aa3e-b90b2ac238f8
select 1;
`
